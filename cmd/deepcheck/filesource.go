package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"deepcheck/internal/imaging"
)

// fileSource replays tightly-packed planar YUV420 frames from a raw file, so
// the pipeline can run offline without a camera stack. Each frame occupies
// w*h luma bytes followed by two w/2*h/2 chroma planes.
type fileSource struct {
	f      *os.File
	width  int
	height int
	pool   sync.Pool
}

func openFileSource(path string, width, height int) (*fileSource, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid source geometry %dx%d", width, height)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open frame source: %w", err)
	}
	s := &fileSource{f: f, width: width, height: height}
	frameSize := s.frameSize()
	s.pool.New = func() interface{} {
		return make([]byte, frameSize)
	}
	return s, nil
}

func (s *fileSource) frameSize() int {
	return s.width*s.height + 2*(s.width/2)*(s.height/2)
}

// Next reads one frame. Returns io.EOF at end of file. The frame's Release
// hands the backing buffer to the pool for reuse.
func (s *fileSource) Next() (*imaging.Frame, error) {
	buf := s.pool.Get().([]byte)
	if _, err := io.ReadFull(s.f, buf); err != nil {
		s.pool.Put(buf)
		if err == io.ErrUnexpectedEOF {
			return nil, io.EOF
		}
		return nil, err
	}

	ySize := s.width * s.height
	cSize := (s.width / 2) * (s.height / 2)

	frame := imaging.NewFrame(
		s.width, s.height, 0,
		imaging.Plane{Data: buf[:ySize], RowStride: s.width, PixelStride: 1},
		imaging.Plane{Data: buf[ySize : ySize+cSize], RowStride: s.width / 2, PixelStride: 1},
		imaging.Plane{Data: buf[ySize+cSize:], RowStride: s.width / 2, PixelStride: 1},
		func() { s.pool.Put(buf) },
	)
	return frame, nil
}

func (s *fileSource) Close() error {
	return s.f.Close()
}
