package dronedet

// Preview rendering of labelled images.

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	log "github.com/sirupsen/logrus"
)

// RenderOptions configures RenderLabels.
type RenderOptions struct {
	OutDir      string                 // Output directory for the previews.
	MaxSide     int                    // Max. length of the longer image side; zero keeps the size.
	Filter      imaging.ResampleFilter // Used when downsampling.
	JPEGQuality int
	ClassNames  []string // Optional class names indexed by class.
	LineWidth   float64
}

// boxColors is the palette for bounding boxes, indexed by class modulo its length.
var boxColors = []color.RGBA{
	{230, 25, 75, 255},
	{60, 180, 75, 255},
	{255, 225, 25, 255},
	{0, 130, 200, 255},
	{245, 130, 48, 255},
	{145, 30, 180, 255},
	{70, 240, 240, 255},
	{240, 50, 230, 255},
	{210, 245, 60, 255},
	{250, 190, 212, 255},
}

// RenderLabels draws the annotations of each file onto its image and writes the result to
// opts.OutDir as JPEG, using the image base name. Returns the first error encountered.
func RenderLabels(data AnnotatedFiles, opts RenderOptions) error {
	if len(data) == 0 {
		return nil
	}
	if err := os.MkdirAll(opts.OutDir, 0755); err != nil {
		return fmt.Errorf("cannot create directory %q: %w", opts.OutDir, err)
	}
	if opts.JPEGQuality < 1 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = 90
	}
	if opts.LineWidth <= 0 {
		opts.LineWidth = 2
	}
	log.Printf("Rendering %d images to %s", len(data), opts.OutDir)

	// Limit the number of goroutines in flight, as they load potentially large images into memory.
	numTasks := runtime.NumCPU()
	if len(data) < numTasks {
		numTasks = len(data)
	}
	workQueue := make(chan AnnotatedFile, 2*numTasks)
	errors := make(chan error, 1)
	trySendError := func(err error) {
		select {
		case errors <- err:
		default:
		}
	}

	var wg sync.WaitGroup
	wg.Add(numTasks)
	for i := 0; i < numTasks; i++ {
		go func() {
			defer wg.Done()
			for f := range workQueue {
				if err := renderFile(f, opts); err != nil {
					trySendError(err)
				}
			}
		}()
	}

	for _, f := range data {
		workQueue <- f
	}
	close(workQueue)
	wg.Wait()

	close(errors)
	if len(errors) > 0 {
		return <-errors
	}
	return nil
}

// renderFile renders a single preview. f is a copy; its annotations are cloned before scaling.
func renderFile(f AnnotatedFile, opts RenderOptions) error {
	img, err := loadImage(f.FilePath)
	if err != nil {
		return fmt.Errorf("failed to load %q: %w", f.FilePath, err)
	}

	img, scaleWidth, scaleHeight := resizeImage(img, opts.MaxSide, opts.Filter)
	f.Annotations = append([]Annotation(nil), f.Annotations...)
	f.scaleCoords(scaleWidth, scaleHeight)

	out := drawAnnotations(img, f.Annotations, opts.ClassNames, opts.LineWidth)

	name := filepath.Base(f.FilePath)
	outPath := filepath.Join(opts.OutDir, strings.TrimSuffix(name, filepath.Ext(name))+".jpg")
	if err := saveImage(outPath, out, opts.JPEGQuality); err != nil {
		return fmt.Errorf("failed to save %q: %w", outPath, err)
	}
	return nil
}

// drawAnnotations returns a copy of img with the bounding boxes and class names drawn onto it.
func drawAnnotations(img image.Image, annotations []Annotation, classNames []string,
	lineWidth float64) image.Image {

	dc := gg.NewContextForImage(img)
	dc.SetLineWidth(lineWidth)
	for _, a := range annotations {
		c := boxColors[((a.Class%len(boxColors))+len(boxColors))%len(boxColors)]
		dc.SetColor(c)
		dc.DrawRectangle(a.Coords[0], a.Coords[1], a.Width(), a.Height())
		dc.Stroke()

		name := fmt.Sprint(a.Class)
		if a.Class >= 0 && a.Class < len(classNames) {
			name = classNames[a.Class]
		}
		dc.DrawStringAnchored(name, a.Coords[0], a.Coords[1]-lineWidth, 0, 0)
	}
	return dc.Image()
}
