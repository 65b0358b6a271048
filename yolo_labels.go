package dronedet

// YOLO label file specific functionality.

import (
	"fmt"
	"strconv"
	"strings"
)

// YOLOLabel is a single line of a YOLO label file. The box is given as center and size, normalised
// by the image width and height.
type YOLOLabel struct {
	Class   int
	CenterX float64
	CenterY float64
	Width   float64
	Height  float64
}

// NewYOLOLabel converts the pixel box (left, top, width, height) in an image of size
// imgWidth x imgHeight to a YOLO label.
func NewYOLOLabel(class int, left, top, width, height float64, imgWidth, imgHeight int) YOLOLabel {
	dw := 1 / float64(imgWidth)
	dh := 1 / float64(imgHeight)
	return YOLOLabel{
		Class:   class,
		CenterX: (left + width/2) * dw,
		CenterY: (top + height/2) * dh,
		Width:   width * dw,
		Height:  height * dh,
	}
}

// Pixels converts the label back to a pixel box (left, top, width, height).
func (l YOLOLabel) Pixels(imgWidth, imgHeight int) (left, top, width, height float64) {
	width = l.Width * float64(imgWidth)
	height = l.Height * float64(imgHeight)
	left = l.CenterX*float64(imgWidth) - width/2
	top = l.CenterY*float64(imgHeight) - height/2
	return left, top, width, height
}

// String formats the label as a label file line.
func (l YOLOLabel) String() string {
	return fmt.Sprintf("%d %.6f %.6f %.6f %.6f", l.Class, l.CenterX, l.CenterY, l.Width, l.Height)
}

// parseYOLOLabel parses a single label file line.
func parseYOLOLabel(line string) (YOLOLabel, error) {
	var l YOLOLabel

	tokens := strings.Fields(line)
	if len(tokens) != 5 {
		return l, fmt.Errorf("expected 5 fields in %q", line)
	}

	var err error
	if l.Class, err = strconv.Atoi(tokens[0]); err != nil {
		return l, fmt.Errorf("unexpected class in %q: %w", line, err)
	}
	values := [4]*float64{&l.CenterX, &l.CenterY, &l.Width, &l.Height}
	for i, p := range values {
		if *p, err = strconv.ParseFloat(tokens[i+1], 64); err != nil {
			return l, fmt.Errorf("unexpected values in %q: %w", line, err)
		}
	}

	return l, nil
}

// ToYOLO converts the annotations of f to YOLO labels, using the image size stored in f.
func ToYOLO(f AnnotatedFile) ([]YOLOLabel, error) {
	if f.Width <= 0 || f.Height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d for %q", f.Width, f.Height, f.FilePath)
	}

	labels := make([]YOLOLabel, len(f.Annotations))
	for i, a := range f.Annotations {
		labels[i] = NewYOLOLabel(a.Class, a.Coords[0], a.Coords[1], a.Width(), a.Height(),
			f.Width, f.Height)
	}
	return labels, nil
}

// FromYOLO reads the YOLO label file at labelPath and converts the labels to pixel coordinates of
// the image at imagePath.
func FromYOLO(labelPath, imagePath string) (AnnotatedFile, error) {
	img, _, err := decodeImageConfig(imagePath)
	if err != nil {
		return AnnotatedFile{}, fmt.Errorf("failed to decode the image metadata: %w", err)
	}

	lines, err := readLines(labelPath)
	if err != nil {
		return AnnotatedFile{}, err
	}

	f := AnnotatedFile{
		Annotations: make([]Annotation, 0, len(lines)),
		FilePath:    imagePath,
		Width:       img.Width,
		Height:      img.Height,
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		l, err := parseYOLOLabel(line)
		if err != nil {
			return AnnotatedFile{}, fmt.Errorf("%s:%d: %w", labelPath, i+1, err)
		}
		left, top, width, height := l.Pixels(img.Width, img.Height)
		f.Annotations = append(f.Annotations, Annotation{
			Class:  l.Class,
			Coords: [4]float64{left, top, left + width, top + height},
		})
	}

	return f, nil
}

// WriteYOLO writes labels to the file at path, one label per line. An empty label list produces
// an empty file.
func WriteYOLO(path string, labels []YOLOLabel) error {
	lines := make([]string, len(labels))
	for i, l := range labels {
		lines[i] = l.String()
	}
	if err := writeLines(path, lines); err != nil {
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}
