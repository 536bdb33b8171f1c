package imaging

import (
	"sync/atomic"
	"time"
)

// Plane is one plane of a planar camera frame. RowStride and PixelStride are
// byte distances and may exceed the logical geometry due to padding.
type Plane struct {
	Data        []byte
	RowStride   int
	PixelStride int
}

// Frame is a planar YUV420 camera frame: full-resolution luma plus two chroma
// planes subsampled 2x in both axes. The frame is owned by the camera
// subsystem; the pipeline must call Release exactly once when it is done
// reading, regardless of which exit path was taken.
type Frame struct {
	Width    int
	Height   int
	Rotation int // degrees, orientation hint for the face locator

	Y Plane
	U Plane
	V Plane

	Timestamp time.Time

	release  func()
	released atomic.Bool
}

// NewFrame wraps externally-owned planes. release is invoked by Release and
// hands the buffers back to the frame source; it may be nil.
func NewFrame(width, height, rotation int, y, u, v Plane, release func()) *Frame {
	return &Frame{
		Width:     width,
		Height:    height,
		Rotation:  rotation,
		Y:         y,
		U:         u,
		V:         v,
		Timestamp: time.Now(),
		release:   release,
	}
}

// Release returns the frame to its source. Safe to call from any goroutine;
// only the first call has an effect.
func (f *Frame) Release() {
	if f.released.CompareAndSwap(false, true) && f.release != nil {
		f.release()
	}
}
