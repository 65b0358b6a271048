package dronedet

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewYOLOLabel(t *testing.T) {
	l := NewYOLOLabel(2, 100, 200, 50, 40, 1000, 800)
	require.Equal(t, "2 0.125000 0.275000 0.050000 0.050000", l.String())

	full := NewYOLOLabel(0, 0, 0, 1000, 800, 1000, 800)
	require.Equal(t, "0 0.500000 0.500000 1.000000 1.000000", full.String())
}

func TestYOLOLabelBoundsAndRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		imgW := 1 + rng.Intn(4000)
		imgH := 1 + rng.Intn(4000)
		left := rng.Float64() * float64(imgW)
		top := rng.Float64() * float64(imgH)
		width := rng.Float64() * (float64(imgW) - left)
		height := rng.Float64() * (float64(imgH) - top)

		l := NewYOLOLabel(3, left, top, width, height, imgW, imgH)
		for _, v := range []float64{l.CenterX, l.CenterY, l.Width, l.Height} {
			require.GreaterOrEqual(t, v, 0.0)
			require.LessOrEqual(t, v, 1.0+1e-12)
		}

		l2, t2, w2, h2 := l.Pixels(imgW, imgH)
		require.InDelta(t, left, l2, 1e-6)
		require.InDelta(t, top, t2, 1e-6)
		require.InDelta(t, width, w2, 1e-6)
		require.InDelta(t, height, h2, 1e-6)
	}
}

func TestParseYOLOLabel(t *testing.T) {
	l, err := parseYOLOLabel("4 0.5 0.25 0.1 0.2")
	require.NoError(t, err)
	require.Equal(t, YOLOLabel{Class: 4, CenterX: 0.5, CenterY: 0.25, Width: 0.1, Height: 0.2}, l)

	_, err = parseYOLOLabel("4 0.5 0.25 0.1")
	require.Error(t, err)
	_, err = parseYOLOLabel("car 0.5 0.25 0.1 0.2")
	require.Error(t, err)
	_, err = parseYOLOLabel("1 0.5 x 0.1 0.2")
	require.Error(t, err)
}

func TestToYOLORequiresImageSize(t *testing.T) {
	_, err := ToYOLO(AnnotatedFile{FilePath: "a.jpg", Annotations: []Annotation{{}}})
	require.Error(t, err)
}

func TestWriteAndReadYOLO(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "a.png")
	labelPath := filepath.Join(dir, "a.txt")
	createTestImage(t, imagePath, 200, 100)

	labels := []YOLOLabel{
		NewYOLOLabel(1, 10, 20, 40, 30, 200, 100),
		NewYOLOLabel(7, 0, 0, 200, 100, 200, 100),
	}
	require.NoError(t, WriteYOLO(labelPath, labels))
	require.Equal(t, []string{
		"1 0.150000 0.350000 0.200000 0.300000",
		"7 0.500000 0.500000 1.000000 1.000000",
	}, readTestLines(t, labelPath))

	f, err := FromYOLO(labelPath, imagePath)
	require.NoError(t, err)
	require.Equal(t, 200, f.Width)
	require.Equal(t, 100, f.Height)
	require.Len(t, f.Annotations, 2)
	require.Equal(t, 1, f.Annotations[0].Class)
	require.InDeltaSlice(t, []float64{10, 20, 50, 50}, f.Annotations[0].Coords[:], 1e-3)
}
