package imaging

import "image"

// ClampRect narrows rect to the intersection with [0,width) x [0,height) and
// repairs degenerate geometry so the result always spans at least one pixel
// (right>left, bottom>top). Face locators routinely return boxes that hang
// past the frame edge; the sampler never sees those.
func ClampRect(rect image.Rectangle, width, height int) image.Rectangle {
	left := clampInt(rect.Min.X, 0, width-1)
	top := clampInt(rect.Min.Y, 0, height-1)
	right := clampInt(rect.Max.X, left+1, width)
	bottom := clampInt(rect.Max.Y, top+1, height)
	return image.Rect(left, top, right, bottom)
}

// SampleInto crops rect out of an interleaved RGB buffer, resamples the crop
// to dstW x dstH and writes normalized floats into out, which must hold
// dstW*dstH*3 values and is fully overwritten from index 0.
//
// Each destination pixel takes exactly one source sample: the source
// coordinate is computed on a bilinearly-scaled grid, truncated and clamped
// into the crop. Channels are normalized from [0,255] to [-1,1] and written
// in B,G,R order: the channel swap is what the bundled classifier was
// trained on, not an accident.
func SampleInto(rgb []byte, srcW, srcH int, rect image.Rectangle, dstW, dstH int, out []float32) {
	r := ClampRect(rect, srcW, srcH)

	scaleX := float32(r.Dx()) / float32(dstW)
	scaleY := float32(r.Dy()) / float32(dstH)

	idx := 0
	for dy := 0; dy < dstH; dy++ {
		srcY := r.Min.Y + int(float32(dy)*scaleY)
		if srcY > r.Max.Y-1 {
			srcY = r.Max.Y - 1
		}
		rowBase := srcY * srcW
		for dx := 0; dx < dstW; dx++ {
			srcX := r.Min.X + int(float32(dx)*scaleX)
			if srcX > r.Max.X-1 {
				srcX = r.Max.X - 1
			}
			p := (rowBase + srcX) * 3
			out[idx] = normalize(rgb[p+2])   // B
			out[idx+1] = normalize(rgb[p+1]) // G
			out[idx+2] = normalize(rgb[p])   // R
			idx += 3
		}
	}
}

// normalize maps a byte sample from [0,255] to [-1,1].
func normalize(v byte) float32 {
	return float32(v)/127.5 - 1
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
