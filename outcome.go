package facecorpus

import (
	"context"
	"errors"
	"io"

	"gopkg.in/yaml.v2"
)

// Reason classifies the result of processing a single image.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonMalformedKey
	ReasonNoFace
	ReasonCropError
	ReasonTimeout
	ReasonDuplicate
	ReasonIO
	ReasonCanceled
)

var reasonNames = map[Reason]string{
	ReasonNone:         "ok",
	ReasonMalformedKey: "malformed key",
	ReasonNoFace:       "no face detected",
	ReasonCropError:    "crop error",
	ReasonTimeout:      "detection timeout",
	ReasonDuplicate:    "duplicate destination",
	ReasonIO:           "i/o error",
	ReasonCanceled:     "canceled",
}

func (r Reason) String() string {
	if name, ok := reasonNames[r]; ok {
		return name
	}
	return "unknown"
}

// Outcome is the terminal result of processing one discovered image.
type Outcome struct {
	Path   string
	Key    ImageKey
	Dest   string
	Size   int64
	Reason Reason
	Err    error
}

// OK reports whether the face crop has been written to Dest.
func (o Outcome) OK() bool {
	return o.Reason == ReasonNone && o.Err == nil
}

// reasonOf maps a processing error to its outcome reason.
func reasonOf(err error) Reason {
	var (
		pathErr *PathError
		cropErr *CropError
	)
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrNoFaceDetected):
		return ReasonNoFace
	case errors.Is(err, ErrDetectTimeout):
		return ReasonTimeout
	case errors.As(err, &cropErr):
		return ReasonCropError
	case errors.As(err, &pathErr):
		return ReasonMalformedKey
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCanceled
	}
	return ReasonIO
}

// Summary counts the outcomes of a run.
type Summary struct {
	Total     int
	Succeeded int
	Bytes     int64
	Failed    map[Reason]int
}

// Summarize aggregates the outcomes of a run.
func Summarize(outcomes []Outcome) Summary {
	s := Summary{Total: len(outcomes), Failed: make(map[Reason]int)}
	for _, o := range outcomes {
		if o.OK() {
			s.Succeeded++
			s.Bytes += o.Size
			continue
		}
		s.Failed[o.Reason]++
	}
	return s
}

// reportEntry is the serialized form of an Outcome.
type reportEntry struct {
	Path   string `yaml:"path"`
	Key    string `yaml:"key,omitempty"`
	Dest   string `yaml:"dest,omitempty"`
	Status string `yaml:"status"`
	Error  string `yaml:"error,omitempty"`
}

// WriteReport writes the outcomes as a YAML list.
func WriteReport(w io.Writer, outcomes []Outcome) error {
	entries := make([]reportEntry, 0, len(outcomes))
	for _, o := range outcomes {
		e := reportEntry{Path: o.Path, Status: o.Reason.String()}
		if !o.Key.IsZero() {
			e.Key = o.Key.String()
		}
		if o.OK() {
			e.Dest = o.Dest
		}
		if o.Err != nil {
			e.Error = o.Err.Error()
		}
		entries = append(entries, e)
	}

	out, err := yaml.Marshal(entries)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}
