package facecorpus

import (
	"errors"
	"fmt"
	"image"
)

// ErrNoFaceDetected is returned by the cropper when the detector reports no face candidates.
var ErrNoFaceDetected = errors.New("no face detected")

// ErrDetectTimeout is returned when the face detector does not answer within the configured timeout.
var ErrDetectTimeout = errors.New("face detection timed out")

// PreconditionError reports a batch level violation (bad arguments, empty discovery).
// It is fatal for the whole run.
type PreconditionError struct {
	Msg string
}

func (e *PreconditionError) Error() string {
	return "precondition failed: " + e.Msg
}

// PathError reports a path which does not follow the <personId>/<imageId>.jpg convention.
type PathError struct {
	Path string
}

func (e *PathError) Error() string {
	return fmt.Sprintf("unresolvable image path %q: expected .../<personId>/<imageId>.jpg", e.Path)
}

// CropError is returned when the selected bounding box can not be cut out of the source image.
type CropError struct {
	Box    BoundingBox
	Bounds image.Rectangle
	Err    error
}

func (e *CropError) Error() string {
	return fmt.Sprintf("crop error: box %v outside of image bounds %v: %v", e.Box, e.Bounds, e.Err)
}

func (e *CropError) Unwrap() error { return e.Err }

// FileFormatError reports an annotation file which does not follow the expected naming or content format.
type FileFormatError struct {
	File string
	Line int
	Msg  string
}

func (e *FileFormatError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("annotation file %s, line %d: %s", e.File, e.Line, e.Msg)
	}
	return fmt.Sprintf("annotation file %s: %s", e.File, e.Msg)
}
