//go:build gocv
// +build gocv

package detect

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"deepcheck/internal/imaging"
)

// CascadeLocator runs a Haar cascade over the frame's luma plane. Detection
// works on grayscale, so the chroma planes are never touched.
type CascadeLocator struct {
	classifier gocv.CascadeClassifier
	minSize    int
	gray       []byte
}

// NewCascadeLocator loads the cascade description from cascadePath. minSize
// is the smallest face edge in pixels that will be reported; zero disables
// the size filter.
func NewCascadeLocator(cascadePath string, minSize int) (*CascadeLocator, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(cascadePath) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade file %s", cascadePath)
	}
	return &CascadeLocator{classifier: classifier, minSize: minSize}, nil
}

// Locate packs the strided luma plane into a dense grayscale image and runs
// the cascade over it.
func (l *CascadeLocator) Locate(f *imaging.Frame) ([]Box, error) {
	need := f.Width * f.Height
	if cap(l.gray) < need {
		l.gray = make([]byte, need)
	}
	gray := l.gray[:need]
	for row := 0; row < f.Height; row++ {
		src := row * f.Y.RowStride
		if src+f.Width > len(f.Y.Data) {
			break
		}
		copy(gray[row*f.Width:(row+1)*f.Width], f.Y.Data[src:src+f.Width])
	}

	mat, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8U, gray)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap luma plane: %w", err)
	}
	defer mat.Close()

	rects := l.classifier.DetectMultiScaleWithParams(
		mat, 1.1, 3, 0,
		image.Pt(l.minSize, l.minSize), image.Pt(0, 0),
	)

	boxes := make([]Box, 0, len(rects))
	for _, r := range rects {
		boxes = append(boxes, Box{Left: r.Min.X, Top: r.Min.Y, Width: r.Dx(), Height: r.Dy()})
	}
	return boxes, nil
}

// Close releases the cascade.
func (l *CascadeLocator) Close() error {
	return l.classifier.Close()
}
