package facecorpus

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/esimov/facecorpus/utils"
)

// jpegQuality is the quality used for the written face crops.
const jpegQuality = 95

// RawImage is a decoded source image of the corpus.
type RawImage struct {
	Key   ImageKey
	Path  string
	Image *image.NRGBA
}

// Width returns the image width in pixels.
func (r *RawImage) Width() int { return r.Image.Bounds().Dx() }

// Height returns the image height in pixels.
func (r *RawImage) Height() int { return r.Image.Bounds().Dy() }

// CroppedImage is the normalized face region cut out of exactly one RawImage.
// It carries the key of its source image.
type CroppedImage struct {
	Key    ImageKey
	Source string
	Box    BoundingBox
	Image  *image.NRGBA
}

// Width returns the image width in pixels.
func (c *CroppedImage) Width() int { return c.Image.Bounds().Dx() }

// Height returns the image height in pixels.
func (c *CroppedImage) Height() int { return c.Image.Bounds().Dy() }

// LoadImage reads and decodes the image found at path.
// The file content, not its extension, must denote an image.
func LoadImage(path string, key ImageKey) (*RawImage, error) {
	ctype, err := utils.DetectContentType(path)
	if err != nil {
		return nil, fmt.Errorf("could not read the source image: %w", err)
	}
	if !strings.HasPrefix(ctype, "image/") {
		return nil, fmt.Errorf("%s is not an image file (%s)", filepath.Base(path), ctype)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("could not open the source image: %w", err)
	}
	defer f.Close()

	src, err := imaging.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("could not decode the source image: %w", err)
	}

	return &RawImage{Key: key, Path: path, Image: imgToNRGBA(src)}, nil
}

// encodeImage encodes the image in the format denoted by the extension of name.
func encodeImage(name string, img image.Image) ([]byte, error) {
	format, err := imaging.FormatFromFilename(name)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, format, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// imgToNRGBA converts any image type to *image.NRGBA with min-point at (0, 0).
func imgToNRGBA(img image.Image) *image.NRGBA {
	if src, ok := img.(*image.NRGBA); ok && src.Bounds().Min == (image.Point{}) {
		return src
	}
	// Clone always returns a copy starting at the origin.
	return imaging.Clone(img)
}
