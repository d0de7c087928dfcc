package facecorpus

import (
	"path"
	"path/filepath"
	"strings"
)

// imageExt is the only extension recognised by the corpus layout.
const imageExt = ".jpg"

// ImageKey identifies a physical image of the corpus by the person it shows and the image name.
// The zero value means that no key could be derived.
type ImageKey struct {
	PersonID string
	ImageID  string
}

// IsZero reports whether the key is absent.
func (k ImageKey) IsZero() bool {
	return k.PersonID == "" && k.ImageID == ""
}

// String returns the key in the form used by the annotation files: personId/imageId.jpg
func (k ImageKey) String() string {
	return k.PersonID + "/" + k.ImageID + imageExt
}

// RelPath returns the key as a relative path using the OS separator.
func (k ImageKey) RelPath() string {
	return filepath.Join(k.PersonID, k.ImageID+imageExt)
}

// ParseKey derives the image key from a path of the form .../personId/imageId.jpg.
// It has no side effects.
func ParseKey(p string) (ImageKey, error) {
	segments := strings.Split(filepath.ToSlash(p), "/")

	// At least two directory segments must precede the file name.
	if len(segments) < 3 {
		return ImageKey{}, &PathError{Path: p}
	}

	name := segments[len(segments)-1]
	person := segments[len(segments)-2]

	if person == "" || path.Ext(name) != imageExt {
		return ImageKey{}, &PathError{Path: p}
	}

	id := strings.TrimSuffix(name, imageExt)
	if id == "" {
		return ImageKey{}, &PathError{Path: p}
	}

	return ImageKey{PersonID: person, ImageID: id}, nil
}

// ResolveKey returns the image key of a path and false if the path is unresolvable.
// Failures are reported as warnings and never abort the caller.
func ResolveKey(p string) (ImageKey, bool) {
	key, err := ParseKey(p)
	if err != nil {
		log.Warnf("keys: invalid image identifier %q", p)
		return ImageKey{}, false
	}
	return key, true
}

// PersonID returns the person id part of the image key, or an empty string.
func PersonID(p string) string {
	key, err := ParseKey(p)
	if err != nil {
		return ""
	}
	return key.PersonID
}
