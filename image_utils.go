package dronedet

import (
	"fmt"
	"image"
	"os"

	"github.com/disintegration/imaging"
)

// ParseResampleFilter returns the imaging filter for one of the names nearest, box, linear,
// gaussian and lanczos.
func ParseResampleFilter(name string) (imaging.ResampleFilter, error) {
	switch name {
	case "nearest":
		return imaging.NearestNeighbor, nil
	case "box":
		return imaging.Box, nil
	case "linear":
		return imaging.Linear, nil
	case "gaussian":
		return imaging.Gaussian, nil
	case "lanczos":
		return imaging.Lanczos, nil
	}
	return imaging.ResampleFilter{}, fmt.Errorf("unknown resampling filter %q", name)
}

// resizeImage resamples img so that its longer side matches longerSide, keeping the aspect ratio.
// Images whose longer side is already at most longerSide are returned unchanged.
//
// Returns the resized image along with the width and height scale factors.
func resizeImage(img image.Image, longerSide int, filter imaging.ResampleFilter) (
	resized image.Image, scaleWidth, scaleHeight float64) {

	b := img.Bounds()
	if longerSide <= 0 || (b.Dx() <= longerSide && b.Dy() <= longerSide) {
		return img, 1, 1
	}

	resized = imaging.Fit(img, longerSide, longerSide, filter)
	rb := resized.Bounds()
	return resized, float64(rb.Dx()) / float64(b.Dx()), float64(rb.Dy()) / float64(b.Dy())
}

// decodeImageConfig opens the file at path and returns the results of image.DecodeConfig. Only
// the image header is read.
func decodeImageConfig(path string) (config image.Config, format string, err error) {
	file, err := os.Open(path)
	if err != nil {
		return image.Config{}, "", err
	}
	defer file.Close()

	return image.DecodeConfig(file)
}

// loadImage reads and decodes the image at path. EXIF orientation is not applied, as annotation
// coordinates refer to the stored pixel layout.
func loadImage(path string) (image.Image, error) {
	return imaging.Open(path)
}

// saveImage saves the image to path, encoding it according to the file extension of path.
func saveImage(path string, img image.Image, jpegQuality int) error {
	return imaging.Save(img, path, imaging.JPEGQuality(jpegQuality))
}
