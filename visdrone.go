package dronedet

// VisDrone DET specific functionality.

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Default VisDrone conventions.
const (
	DefaultVisDroneIgnoreFlag  = 0 // The score value marking an ignored region.
	DefaultVisDroneClassOffset = 1 // Categories are one-based.
)

// VisDroneSplits are the dataset directories of the VisDrone2019 DET release.
var VisDroneSplits = []string{
	"VisDrone2019-DET-train",
	"VisDrone2019-DET-val",
	"VisDrone2019-DET-test-dev",
}

// VisDroneClasses are the detection class names after the class offset is applied.
var VisDroneClasses = []string{
	"pedestrian",
	"people",
	"bicycle",
	"car",
	"van",
	"truck",
	"tricycle",
	"awning-tricycle",
	"bus",
	"motor",
}

// VisDroneAnnotation is a single row of a VisDrone annotation file.
type VisDroneAnnotation struct {
	Left, Top, Width, Height float64 // Pixel box.
	Score                    int     // In ground truth, 0 marks an ignored region.
	Category                 int     // One-based class.
	Truncation               int     // Optional, -1 if absent.
	Occlusion                int     // Optional, -1 if absent.
}

// VisDroneConfig holds the dataset conventions and processing options of the converter.
type VisDroneConfig struct {
	IgnoreFlag  int          // Rows with this score are skipped.
	ClassOffset int          // Subtracted from the category to obtain the class.
	Clip        bool         // Clip boxes to the image bounds.
	Mapping     ClassMapping // Applied after the class offset.
	Filter      FilterOptions
	Workers     int // Max. files converted concurrently; <= 0 selects the number of CPUs.
}

// DefaultVisDroneConfig returns the configuration for the VisDrone DET ground truth.
func DefaultVisDroneConfig() VisDroneConfig {
	return VisDroneConfig{
		IgnoreFlag:  DefaultVisDroneIgnoreFlag,
		ClassOffset: DefaultVisDroneClassOffset,
	}
}

// parseVisDroneAnnotation parses the comma-separated values of a single annotation row. The first
// six fields are required.
func parseVisDroneAnnotation(line string) (VisDroneAnnotation, error) {
	a := VisDroneAnnotation{Truncation: -1, Occlusion: -1}

	tokens := strings.Split(strings.TrimRight(line, ","), ",")
	if len(tokens) < 6 {
		return a, fmt.Errorf("insufficient fields in %q", line)
	}
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}

	box := [4]*float64{&a.Left, &a.Top, &a.Width, &a.Height}
	for i, p := range box {
		v, err := strconv.ParseFloat(tokens[i], 64)
		if err != nil {
			return a, fmt.Errorf("unexpected box value in %q: %w", line, err)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return a, fmt.Errorf("non-numeric box value %q in %q", tokens[i], line)
		}
		*p = v
	}

	ints := []*int{&a.Score, &a.Category, &a.Truncation, &a.Occlusion}
	for i, p := range ints {
		if 4+i >= len(tokens) {
			break
		}
		v, err := strconv.Atoi(tokens[4+i])
		if err != nil {
			return a, fmt.Errorf("unexpected value in %q: %w", line, err)
		}
		*p = v
	}

	return a, nil
}

// toAnnotation converts a to the intermediate representation.
func (a VisDroneAnnotation) toAnnotation(classOffset int) Annotation {
	attrs := make(map[string]interface{}, 2)
	if a.Truncation >= 0 {
		attrs[Truncation] = a.Truncation
	}
	if a.Occlusion >= 0 {
		attrs[Occlusion] = a.Occlusion
	}
	return Annotation{
		Attributes: attrs,
		Class:      a.Category - classOffset,
		Coords:     [4]float64{a.Left, a.Top, a.Left + a.Width, a.Top + a.Height},
	}
}

// FromVisDrone reads the VisDrone annotation file at labelPath for an image of the given size.
//
// Rows flagged as ignored regions are skipped and counted. Any malformed row fails the whole file.
func FromVisDrone(labelPath, imagePath string, width, height int, cfg VisDroneConfig) (
	f AnnotatedFile, ignored int, err error) {

	lines, err := readLines(labelPath)
	if err != nil {
		return AnnotatedFile{}, 0, err
	}

	f = AnnotatedFile{
		Annotations: make([]Annotation, 0, len(lines)),
		FilePath:    imagePath,
		Width:       width,
		Height:      height,
	}
	for i, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		a, err := parseVisDroneAnnotation(line)
		if err != nil {
			return AnnotatedFile{}, 0, fmt.Errorf("%s:%d: %w", labelPath, i+1, err)
		}
		if a.Score == cfg.IgnoreFlag {
			ignored++
			continue
		}
		f.Annotations = append(f.Annotations, a.toAnnotation(cfg.ClassOffset))
	}

	return f, ignored, nil
}
