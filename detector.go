package facecorpus

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/esimov/facecorpus/utils"
	pigo "github.com/esimov/pigo/core"
)

// BoundingBox is a rectangle in source image pixel coordinates.
type BoundingBox struct {
	X, Y          int
	Width, Height int
}

// Rect returns the box as an image rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.Width, b.Y+b.Height)
}

// Validate checks that the box is not empty and lies within bounds.
func (b BoundingBox) Validate(bounds image.Rectangle) error {
	switch {
	case b.Width <= 0 || b.Height <= 0:
		return fmt.Errorf("empty box %dx%d", b.Width, b.Height)
	case b.X < bounds.Min.X || b.Y < bounds.Min.Y:
		return fmt.Errorf("negative origin (%d, %d)", b.X, b.Y)
	case b.X+b.Width > bounds.Max.X || b.Y+b.Height > bounds.Max.Y:
		return fmt.Errorf("box ends at (%d, %d)", b.X+b.Width, b.Y+b.Height)
	}
	return nil
}

// Detection is a single face candidate reported by a Detector.
type Detection struct {
	Box   BoundingBox
	Score float32
}

// Detector finds face candidates in an image. Implementations must be safe for concurrent use.
type Detector interface {
	Detect(ctx context.Context, img *image.NRGBA) ([]Detection, error)
}

// PigoDetector detects faces with the pigo cascade classifier.
// The cascade is unpacked lazily on the first detection and shared afterwards.
type PigoDetector struct {
	// Cascade is a file path or URL of the facefinder cascade.
	Cascade string
	// MinSize and MaxSize bound the face size in pixels. A zero MaxSize means the largest image side.
	MinSize int
	MaxSize int
	// ShiftFactor and ScaleFactor control the sliding window of the cascade.
	ShiftFactor float64
	ScaleFactor float64
	// Angle is the plane rotation of the searched faces (0.0 - 1.0).
	Angle float64
	// IoUThreshold is used to cluster overlapping detections.
	IoUThreshold float64
	// MinScore drops cascade detections with a lower quality value.
	MinScore float32

	once       sync.Once
	classifier *pigo.Pigo
	err        error
}

// NewPigoDetector returns a detector with the default cascade parameters.
func NewPigoDetector(cascade string) *PigoDetector {
	return &PigoDetector{
		Cascade:      cascade,
		MinSize:      20,
		ShiftFactor:  0.1,
		ScaleFactor:  1.1,
		IoUThreshold: 0.2,
		MinScore:     5.0,
	}
}

// Detect runs the cascade over the grayscale version of img.
// Detections are returned in the order produced by the classifier and are not clamped to the image bounds.
func (d *PigoDetector) Detect(ctx context.Context, img *image.NRGBA) ([]Detection, error) {
	if err := d.Load(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dx, dy := img.Bounds().Dx(), img.Bounds().Dy()
	maxSize := d.MaxSize
	if maxSize <= 0 {
		maxSize = utils.Max(dx, dy)
	}

	cParams := pigo.CascadeParams{
		MinSize:     d.MinSize,
		MaxSize:     maxSize,
		ShiftFactor: d.ShiftFactor,
		ScaleFactor: d.ScaleFactor,

		ImageParams: pigo.ImageParams{
			Pixels: rgbToGrayscale(img),
			Rows:   dy,
			Cols:   dx,
			Dim:    dx,
		},
	}

	// The result contains quadruplets representing the row, column, scale and detection score.
	faces := d.classifier.RunCascade(cParams, d.Angle)
	faces = d.classifier.ClusterDetections(faces, d.IoUThreshold)

	var res []Detection
	for _, f := range faces {
		if f.Q < d.MinScore {
			continue
		}
		res = append(res, Detection{Box: boxFromPigo(f), Score: f.Q})
	}
	return res, nil
}

// Load unpacks the cascade file. Only the first call does the work; later calls return its result.
func (d *PigoDetector) Load() error {
	d.once.Do(func() {
		if d.Cascade == "" {
			d.err = errors.New("no face cascade configured")
			return
		}

		var data []byte
		if utils.IsValidUrl(d.Cascade) {
			data, d.err = utils.Download(d.Cascade)
		} else {
			data, d.err = os.ReadFile(d.Cascade)
		}
		if d.err != nil {
			d.err = fmt.Errorf("could not load the cascade file: %w", d.err)
			return
		}

		d.classifier, d.err = pigo.NewPigo().Unpack(data)
		if d.err != nil {
			d.err = fmt.Errorf("error unpacking the cascade file: %w", d.err)
			return
		}
		log.Debugf("crop: loaded face cascade %s", d.Cascade)
	})
	return d.err
}

// boxFromPigo converts a centered pigo detection into a top-left bounding box.
func boxFromPigo(f pigo.Detection) BoundingBox {
	return BoundingBox{
		X:      f.Col - f.Scale/2,
		Y:      f.Row - f.Scale/2,
		Width:  f.Scale,
		Height: f.Scale,
	}
}

// rgbToGrayscale converts an image to grayscale mode and
// returns the pixel values as an one dimensional array.
func rgbToGrayscale(src *image.NRGBA) []uint8 {
	bounds := src.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	gray := make([]uint8, width*height)

	for y := 0; y < height; y++ {
		i := src.PixOffset(bounds.Min.X, bounds.Min.Y+y)
		for x := 0; x < width; x++ {
			r, g, b := uint32(src.Pix[i]), uint32(src.Pix[i+1]), uint32(src.Pix[i+2])
			gray[y*width+x] = uint8((299*r + 587*g + 114*b) / 1000)
			i += 4
		}
	}

	return gray
}
