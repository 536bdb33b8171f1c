//go:build !gocv
// +build !gocv

package detect

import (
	"errors"

	"deepcheck/internal/imaging"
)

// CascadeLocator is the no-op stand-in when the build lacks the gocv tag.
type CascadeLocator struct{}

// NewCascadeLocator always fails without the gocv build tag.
func NewCascadeLocator(cascadePath string, minSize int) (*CascadeLocator, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

func (l *CascadeLocator) Locate(f *imaging.Frame) ([]Box, error) {
	return nil, errors.New("gocv build tag is not enabled")
}

func (l *CascadeLocator) Close() error { return nil }
