package service

import (
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
)

func Softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	maxV := logits[0]
	for _, v := range logits[1:] {
		maxV = max(maxV, v)
	}
	out := make([]float32, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v - maxV))
		out[i] = float32(e)
		sum += e
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / sum)
	}
	return out
}

// luminance returns the image as one 8-bit channel, row-major, with its
// width and height. Alpha is discarded rather than composited.
func luminance(img image.Image) ([]uint8, int, int) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([]uint8, w*h)

	switch g := img.(type) {
	case *image.Gray:
		for y := range h {
			copy(out[y*w:(y+1)*w], g.Pix[g.PixOffset(b.Min.X, b.Min.Y+y):])
		}
		return out, w, h
	case *image.Gray16:
		for y := range h {
			for x := range w {
				out[y*w+x] = uint8(g.Gray16At(b.Min.X+x, b.Min.Y+y).Y >> 8)
			}
		}
		return out, w, h
	}

	opaque := imaging.Clone(img)
	for i := 3; i < len(opaque.Pix); i += 4 {
		opaque.Pix[i] = 0xff
	}
	gray := imaging.Grayscale(opaque)
	for y := range h {
		row := gray.Pix[y*gray.Stride:]
		for x := range w {
			out[y*w+x] = row[x*4]
		}
	}
	return out, w, h
}

// resizeBilinear samples src (w x h) onto a dw x dh grid with pixel-centre
// alignment, interpolating the 2x2 neighbourhood of each sample point. There
// is no area filtering on downscale.
func resizeBilinear(src []uint8, w, h, dw, dh int) []uint8 {
	xi, xf := bilinearTaps(w, dw)
	yi, yf := bilinearTaps(h, dh)

	out := make([]uint8, dw*dh)
	for y := range dh {
		r0 := src[yi[y]*w:]
		r1 := r0
		if yi[y]+1 < h {
			r1 = src[(yi[y]+1)*w:]
		}
		fy := yf[y]
		for x := range dw {
			x0, x1 := xi[x], xi[x]
			if x1+1 < w {
				x1++
			}
			fx := xf[x]
			top := float64(r0[x0])*(1-fx) + float64(r0[x1])*fx
			bottom := float64(r1[x0])*(1-fx) + float64(r1[x1])*fx
			v := math.Round(top*(1-fy) + bottom*fy)
			out[y*dw+x] = uint8(min(max(v, 0), 255))
		}
	}
	return out
}

// bilinearTaps returns, per destination index, the left source index and the
// weight of its right neighbour. Samples outside the source clamp to the edge.
func bilinearTaps(src, dst int) ([]int, []float64) {
	scale := float64(src) / float64(dst)
	idx := make([]int, dst)
	frac := make([]float64, dst)
	for d := range dst {
		f := (float64(d)+0.5)*scale - 0.5
		i := int(math.Floor(f))
		f -= float64(i)
		if i < 0 {
			i, f = 0, 0
		}
		if i >= src-1 {
			i, f = src-1, 0
		}
		idx[d], frac[d] = i, f
	}
	return idx, frac
}

// Preprocess turns a decoded image into the model input: luminance only,
// squashed to ImageSize x ImageSize, scaled to [0,1].
func Preprocess(img image.Image) (*Tensor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, fmt.Errorf("cannot preprocess an empty image")
	}
	gray, w, h := luminance(img)
	resized := resizeBilinear(gray, w, h, ImageSize, ImageSize)

	out := make([]float32, len(resized))
	for i, v := range resized {
		out[i] = float32(v) / 255
	}
	return &Tensor{Shape: InputShape.Clone(), Data: out}, nil
}
