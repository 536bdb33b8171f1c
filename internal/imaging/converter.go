package imaging

import "sync"

// fallbackSample is substituted for any plane read that lands outside the
// backing slice. Padded or slightly mis-declared strides at frame edges are
// common on camera HALs; a mid-range sample keeps the output stable instead
// of panicking.
const fallbackSample = 128

// Converter turns a planar YUV420 frame into interleaved 8-bit RGB using the
// fixed BT.601 transform. It owns its output buffer and reuses it across
// frames: the buffer grows when a larger frame arrives and never shrinks.
//
// Convert is serialized by an internal mutex so two frames can never write
// the same buffer concurrently. The returned slice aliases the internal
// buffer and is only valid until the next Convert call.
type Converter struct {
	mu  sync.Mutex
	rgb []byte
}

// NewConverter returns a converter with no buffer allocated yet; the first
// Convert call sizes it.
func NewConverter() *Converter {
	return &Converter{}
}

// Convert produces width*height*3 interleaved R,G,B bytes for the frame.
// All plane indexing is bounds-checked with a 128 fallback, so Convert never
// fails on malformed strides.
func (c *Converter) Convert(f *Frame) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	need := f.Width * f.Height * 3
	c.ensureCapacity(need)
	out := c.rgb[:need]

	yData, uData, vData := f.Y.Data, f.U.Data, f.V.Data

	idx := 0
	for row := 0; row < f.Height; row++ {
		yBase := row * f.Y.RowStride
		uvRow := (row / 2) * f.U.RowStride
		vRow := (row / 2) * f.V.RowStride
		for col := 0; col < f.Width; col++ {
			yv := sampleAt(yData, yBase+col)
			uv := sampleAt(uData, uvRow+(col/2)*f.U.PixelStride)
			vv := sampleAt(vData, vRow+(col/2)*f.V.PixelStride)

			// BT.601 full-swing reconstruction.
			yf := 1.164 * float32(yv-16)
			uf := float32(uv - 128)
			vf := float32(vv - 128)

			r := yf + 1.596*vf
			g := yf - 0.392*uf - 0.813*vf
			b := yf + 2.017*uf

			out[idx] = clampByte(r)
			out[idx+1] = clampByte(g)
			out[idx+2] = clampByte(b)
			idx += 3
		}
	}

	return out
}

// ensureCapacity grows the owned buffer to at least n bytes, reusing the
// existing allocation when it is already large enough.
func (c *Converter) ensureCapacity(n int) {
	if cap(c.rgb) < n {
		c.rgb = make([]byte, n)
	}
	c.rgb = c.rgb[:cap(c.rgb)]
}

func sampleAt(plane []byte, i int) int {
	if i < 0 || i >= len(plane) {
		return fallbackSample
	}
	return int(plane[i])
}

func clampByte(v float32) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}
