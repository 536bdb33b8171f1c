// Package detect defines the face-locator boundary. The pipeline treats the
// locator as a black box that returns zero or one usable bounding box per
// frame; the bundled implementation is a Haar cascade behind the gocv build
// tag, with a stub otherwise.
package detect

import (
	"errors"
	"image"

	"deepcheck/internal/imaging"
)

// ErrNoFace is returned when the locator ran successfully but found nothing.
var ErrNoFace = errors.New("no face detected")

// Box is a detected face in source pixel coordinates.
type Box struct {
	Left   int
	Top    int
	Width  int
	Height int
}

// Rect converts the box to the half-open rectangle form the sampler expects.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Left+b.Width, b.Top+b.Height)
}

// Locator finds faces in a planar frame. Locate reads only the frame's luma
// plane and its orientation metadata; results are ordered by detector
// confidence, and callers take the first box only.
type Locator interface {
	Locate(f *imaging.Frame) ([]Box, error)
	Close() error
}
