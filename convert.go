package dronedet

// Conversion of VisDrone dataset directories to YOLO label directories.

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Dataset directory names.
const (
	ImagesDir      = "images"
	AnnotationsDir = "annotations"
	LabelsDir      = "labels"
)

// FileResult is the outcome of converting a single annotation file.
type FileResult struct {
	Source   string // The annotation file.
	Output   string // The label file, empty if conversion failed.
	Boxes    int    // Labels written.
	Ignored  int    // Rows skipped as ignored regions.
	Filtered int    // Annotations removed by the class mapping or filters.
	Err      error
}

// ConversionReport summarises the conversion of one dataset directory.
type ConversionReport struct {
	Dir   string
	Files []FileResult
}

// Totals returns the number of converted and failed files and the number of written, ignored and
// filtered boxes.
func (r *ConversionReport) Totals() (converted, failed, boxes, ignored, filtered int) {
	for _, f := range r.Files {
		if f.Err != nil {
			failed++
			continue
		}
		converted++
		boxes += f.Boxes
		ignored += f.Ignored
		filtered += f.Filtered
	}
	return
}

// Err joins the errors of all failed files. It is nil if every file was converted.
func (r *ConversionReport) Err() error {
	var errs []error
	for _, f := range r.Files {
		if f.Err != nil {
			errs = append(errs, f.Err)
		}
	}
	return errors.Join(errs...)
}

// ConvertVisDroneFile converts the VisDrone annotation file at labelPath, belonging to the image at
// imagePath, to a YOLO label file at outPath. Nothing is written if the conversion fails.
func ConvertVisDroneFile(labelPath, imagePath, outPath string, cfg VisDroneConfig) FileResult {
	res := FileResult{Source: labelPath}

	img, _, err := decodeImageConfig(imagePath)
	if err != nil {
		res.Err = fmt.Errorf("failed to decode the image metadata for %q: %w", labelPath, err)
		return res
	}

	f, ignored, err := FromVisDrone(labelPath, imagePath, img.Width, img.Height, cfg)
	if err != nil {
		res.Err = err
		return res
	}
	res.Ignored = ignored

	_, dropped := cfg.Mapping.Apply(&f)
	res.Filtered = dropped + f.Filter(cfg.Filter)
	if cfg.Clip {
		for i := range f.Annotations {
			f.Annotations[i].clip(float64(f.Width), float64(f.Height))
		}
	}

	labels, err := ToYOLO(f)
	if err != nil {
		res.Err = err
		return res
	}
	if err := WriteYOLO(outPath, labels); err != nil {
		res.Err = err
		return res
	}

	res.Output = outPath
	res.Boxes = len(labels)
	return res
}

// ConvertVisDroneDir converts all annotation files in dir/annotations to YOLO label files in
// dir/labels, matching each to the image with the same base name in dir/images.
//
// Files are converted concurrently and independently: a failure only affects the file in question
// and is recorded in the returned report. An error is returned only if the directory itself cannot
// be processed.
func ConvertVisDroneDir(dir string, cfg VisDroneConfig) (*ConversionReport, error) {
	annotationDir := filepath.Join(dir, AnnotationsDir)
	imageDir := filepath.Join(dir, ImagesDir)
	labelDir := filepath.Join(dir, LabelsDir)

	annotationFiles, err := filesByExtInDir(annotationDir, ".txt")
	if err != nil {
		return nil, err
	}
	images, err := indexImages(imageDir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(labelDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create directory %q: %w", labelDir, err)
	}
	log.Printf("Converting %d annotation files in %s", len(annotationFiles), dir)

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	report := &ConversionReport{Dir: dir, Files: make([]FileResult, len(annotationFiles))}
	var g errgroup.Group
	g.SetLimit(workers)
	for i, path := range annotationFiles {
		g.Go(func() error {
			imagePath, err := images.lookup(path)
			if err != nil {
				report.Files[i] = FileResult{Source: path, Err: err}
				return nil
			}
			outPath := filepath.Join(labelDir, filepath.Base(path))
			report.Files[i] = ConvertVisDroneFile(path, imagePath, outPath, cfg)
			return nil
		})
	}
	_ = g.Wait()

	converted, failed, boxes, ignored, filtered := report.Totals()
	log.Printf("Converted %d files (%d failed): %d boxes written, %d ignored regions, %d filtered",
		converted, failed, boxes, ignored, filtered)
	for _, f := range report.Files {
		if f.Err != nil {
			log.Warn("Conversion failed: ", f.Err)
		}
	}

	return report, nil
}
