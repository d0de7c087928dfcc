package facecorpus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
)

// DefaultCropSize is the side of the square face crops expected by the face embedding backbones.
const DefaultCropSize = 224

// Selection chooses the face used for the crop among the detector results.
type Selection int

const (
	// SelectFirst uses the first detection as reported by the detector.
	SelectFirst Selection = iota
	// SelectBestScore uses the detection with the highest score.
	SelectBestScore
)

// ParseSelection converts a selection name ("first" or "score") to a Selection.
func ParseSelection(s string) (Selection, error) {
	switch s {
	case "", "first":
		return SelectFirst, nil
	case "score":
		return SelectBestScore, nil
	}
	return SelectFirst, fmt.Errorf("unsupported face selection %q", s)
}

func (s Selection) String() string {
	if s == SelectBestScore {
		return "score"
	}
	return "first"
}

// Cropper cuts the primary face out of raw images.
type Cropper struct {
	Detector Detector
	Size     int
	// Filter is the resampling filter of the final resize; the zero value is nearest neighbor.
	Filter    imaging.ResampleFilter
	Selection Selection
	// Timeout bounds a single detection. Zero disables the timeout.
	Timeout time.Duration
}

// NewCropper returns a cropper producing 224x224 crops with the Lanczos filter.
func NewCropper(d Detector) *Cropper {
	return &Cropper{
		Detector: d,
		Size:     DefaultCropSize,
		Filter:   imaging.Lanczos,
	}
}

// Crop detects the faces of raw, selects one and returns it resized to a Size x Size square.
// It fails with ErrNoFaceDetected if the detector finds nothing and with a *CropError
// if the selected box does not fit in the image.
func (c *Cropper) Crop(ctx context.Context, raw *RawImage) (*CroppedImage, error) {
	faces, err := c.detect(ctx, raw)
	if err != nil {
		return nil, err
	}
	if len(faces) == 0 {
		return nil, ErrNoFaceDetected
	}

	box := c.pick(faces).Box
	bounds := raw.Image.Bounds()
	if err := box.Validate(bounds); err != nil {
		return nil, &CropError{Box: box, Bounds: bounds, Err: err}
	}

	size := c.Size
	if size <= 0 {
		size = DefaultCropSize
	}
	face := imaging.Crop(raw.Image, box.Rect())
	face = imaging.Resize(face, size, size, c.Filter)

	return &CroppedImage{
		Key:    raw.Key,
		Source: raw.Path,
		Box:    box,
		Image:  face,
	}, nil
}

// detect runs the detector, bounded by the cropper timeout.
func (c *Cropper) detect(ctx context.Context, raw *RawImage) ([]Detection, error) {
	if c.Detector == nil {
		return nil, errors.New("no face detector configured")
	}
	if c.Timeout <= 0 {
		return c.Detector.Detect(ctx, raw.Image)
	}

	ctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()

	type detectResult struct {
		faces []Detection
		err   error
	}
	done := make(chan detectResult, 1)

	go func() {
		faces, err := c.Detector.Detect(ctx, raw.Image)
		done <- detectResult{faces, err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrDetectTimeout
		}
		return res.faces, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrDetectTimeout
		}
		return nil, ctx.Err()
	}
}

func (c *Cropper) pick(faces []Detection) Detection {
	best := faces[0]
	if c.Selection != SelectBestScore {
		return best
	}
	for _, f := range faces[1:] {
		if f.Score > best.Score {
			best = f
		}
	}
	return best
}
