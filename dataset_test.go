package dronedet

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDatasetRoundTrip(t *testing.T) {
	d := NewVisDroneDataset("/data/visdrone", VisDroneSplits)
	require.Equal(t, "VisDrone2019-DET-train/images", d.Train)
	require.Equal(t, "VisDrone2019-DET-val/images", d.Val)
	require.Equal(t, "VisDrone2019-DET-test-dev/images", d.Test)
	require.Equal(t, VisDroneClasses, d.ClassNames())

	path := filepath.Join(t.TempDir(), "VisDrone.yaml")
	require.NoError(t, WriteDataset(path, d))

	enc, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(enc), "path: /data/visdrone\n")
	require.Contains(t, string(enc), "    0: pedestrian\n")
	require.Contains(t, string(enc), "    9: motor\n")

	loaded, err := LoadDataset(path)
	require.NoError(t, err)
	require.Equal(t, d, loaded)
}

func TestDatasetPartialSplits(t *testing.T) {
	d := NewVisDroneDataset("root", []string{"train"})
	require.Equal(t, "train/images", d.Train)
	require.Empty(t, d.Val)
	require.Empty(t, d.Test)
}

func TestClassNamesWithGaps(t *testing.T) {
	d := Dataset{Names: map[int]string{0: "a", 2: "c"}}
	require.Equal(t, []string{"a", "1", "c"}, d.ClassNames())
	require.Nil(t, Dataset{}.ClassNames())
}

func TestClassNamesOutOfRange(t *testing.T) {
	require.Nil(t, Dataset{Names: NameMap{-5: "x"}}.ClassNames())
	d := Dataset{Names: NameMap{0: "a", 100000: "b", -2: "c"}}
	require.Equal(t, []string{"a"}, d.ClassNames())
}

func TestLoadDatasetNameForms(t *testing.T) {
	dir := t.TempDir()

	list := filepath.Join(dir, "list.yaml")
	writeTestFile(t, list, "path: /data", "train: images", "names: [pedestrian, people, car]")
	d, err := LoadDataset(list)
	require.NoError(t, err)
	require.Equal(t, []string{"pedestrian", "people", "car"}, d.ClassNames())

	mapping := filepath.Join(dir, "map.yaml")
	writeTestFile(t, mapping, "path: /data", "names:", "  0: pedestrian", "  2: car")
	d, err = LoadDataset(mapping)
	require.NoError(t, err)
	require.Equal(t, []string{"pedestrian", "1", "car"}, d.ClassNames())

	for i, names := range []string{"names: {-5: x}", "names: {100000: x}"} {
		path := filepath.Join(dir, fmt.Sprintf("bad%d.yaml", i))
		writeTestFile(t, path, names)
		_, err := LoadDataset(path)
		require.ErrorContains(t, err, "out of range", names)
	}
}

func TestLoadDatasetErrors(t *testing.T) {
	_, err := LoadDataset(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	writeTestFile(t, path, "names: [unterminated")
	_, err = LoadDataset(path)
	require.Error(t, err)
}

func TestFromYOLODirAndImageList(t *testing.T) {
	dir := t.TempDir()
	createTestImage(t, filepath.Join(dir, ImagesDir, "a.jpg"), 100, 50)
	createTestImage(t, filepath.Join(dir, ImagesDir, "b.jpg"), 100, 50)
	createTestImage(t, filepath.Join(dir, ImagesDir, "c.jpg"), 100, 50)
	writeTestFile(t, filepath.Join(dir, ImagesDir, "notes.md"), "not an image")
	writeTestFile(t, filepath.Join(dir, LabelsDir, "a.txt"), "0 0.5 0.5 0.2 0.4")
	writeTestFile(t, filepath.Join(dir, LabelsDir, "b.txt"), "broken")
	writeTestFile(t, filepath.Join(dir, LabelsDir, "orphan.txt"), "0 0.5 0.5 0.2 0.4")

	data, err := FromYOLODir(dir, false)
	require.NoError(t, err)
	require.Len(t, data, 1)
	require.Equal(t, filepath.Join(dir, ImagesDir, "a.jpg"), data[0].FilePath)
	require.InDeltaSlice(t, []float64{40, 15, 60, 35}, data[0].Annotations[0].Coords[:], 1e-9)

	data, err = FromYOLODir(dir, true)
	require.NoError(t, err)
	require.Len(t, data, 3)
	require.Equal(t, filepath.Join(dir, ImagesDir, "b.jpg"), data[1].FilePath)
	require.Empty(t, data[1].Annotations)

	list := filepath.Join(dir, "train.txt")
	require.NoError(t, WriteImageList(list, data))
	lines := readTestLines(t, list)
	require.Len(t, lines, 3)
	for _, l := range lines {
		require.True(t, filepath.IsAbs(filepath.FromSlash(l)), l)
	}
}
