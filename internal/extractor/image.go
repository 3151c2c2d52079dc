package extractor

import (
	"hash/fnv"
	"image"
	"time"
)

// toGrayscale converts an image to a row-major grayscale float matrix using
// the standard luminance weighting.
func toGrayscale(img image.Image) [][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	out := make([][]float64, h)
	for y := 0; y < h; y++ {
		row := make([]float64, w)
		for x := 0; x < w; x++ {
			r, g, bl, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			row[x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(bl>>8)
		}
		out[y] = row
	}
	return out
}

// splitChannels extracts the red, green, and blue planes as separate
// float matrices.
func splitChannels(img image.Image) [][][]float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	r := make([][]float64, h)
	g := make([][]float64, h)
	bl := make([][]float64, h)
	for y := 0; y < h; y++ {
		rr := make([]float64, w)
		gg := make([]float64, w)
		bb := make([]float64, w)
		for x := 0; x < w; x++ {
			cr, cg, cb, _ := img.At(b.Min.X+x, b.Min.Y+y).RGBA()
			rr[x] = float64(cr >> 8)
			gg[x] = float64(cg >> 8)
			bb[x] = float64(cb >> 8)
		}
		r[y], g[y], bl[y] = rr, gg, bb
	}
	return [][][]float64{r, g, bl}
}

// regionSeed derives a non-deterministic seed from wall-clock time XORed
// with a content hash, so repeated extraction of the same frame samples
// different regions each time while still being derivable from frame
// content for diagnostics.
func regionSeed(f Frame) uint64 {
	h := fnv.New64a()
	b := f.Image.Bounds()
	n := 0
	for y := b.Min.Y; y < b.Max.Y && n < 1000; y++ {
		for x := b.Min.X; x < b.Max.X && n < 1000; x++ {
			r, g, bl, _ := f.Image.At(x, y).RGBA()
			h.Write([]byte{byte(r >> 8), byte(g >> 8), byte(bl >> 8)})
			n++
		}
	}
	contentHash := h.Sum64()
	return uint64(time.Now().UnixMicro()) ^ contentHash
}
