package extractor

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// fftHighPass applies a centered-disk high-pass filter in the frequency
// domain: frequencies within cutoffRatio of the spectrum center (the low
// frequencies, i.e. the image's gross structure) are zeroed, and the
// inverse transform is returned as normalized noise bytes. The 2-D
// transform is computed as two passes of a 1-D complex FFT (rows, then
// columns), exploiting the separability of the DFT — gonum has no 2-D FFT
// primitive.
func fftHighPass(gray [][]float64, cutoffRatio float64) []byte {
	h := len(gray)
	if h == 0 {
		return nil
	}
	w := len(gray[0])
	if w == 0 {
		return nil
	}

	data := make([][]complex128, h)
	for y := 0; y < h; y++ {
		data[y] = make([]complex128, w)
		for x := 0; x < w; x++ {
			data[y][x] = complex(gray[y][x], 0)
		}
	}

	rowFFT := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		data[y] = rowFFT.Coefficients(nil, data[y])
	}

	colFFT := fourier.NewCmplxFFT(h)
	col := make([]complex128, h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y][x]
		}
		col = colFFT.Coefficients(nil, col)
		for y := 0; y < h; y++ {
			data[y][x] = col[y]
		}
	}

	applyHighPassMask(data, w, h, cutoffRatio)

	invRow := fourier.NewCmplxFFT(w)
	for y := 0; y < h; y++ {
		data[y] = invRow.Sequence(nil, data[y])
	}
	invCol := fourier.NewCmplxFFT(h)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			col[y] = data[y][x]
		}
		col = invCol.Sequence(nil, col)
		for y := 0; y < h; y++ {
			data[y][x] = col[y]
		}
	}

	// gonum's CmplxFFT.Sequence already normalizes each inverse pass by
	// 1/n, so after both the row and column inverse passes the result is
	// back in the original pixel-intensity scale.
	mag := make([][]float64, h)
	for y := 0; y < h; y++ {
		mag[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			mag[y][x] = cmplx.Abs(data[y][x])
		}
	}
	return normalizeToBytes(mag)
}

// applyHighPassMask zeros the (unshifted) low-frequency bins that fall
// within cutoffRatio of the spectrum's DC corner set, equivalent to zeroing
// a centered disk in the fftshifted spectrum.
func applyHighPassMask(data [][]complex128, w, h int, cutoffRatio float64) {
	cx, cy := float64(w)/2, float64(h)/2
	radius := cutoffRatio * math.Min(cx, cy)

	for y := 0; y < h; y++ {
		fy := float64(y)
		if fy > float64(h)/2 {
			fy -= float64(h)
		}
		for x := 0; x < w; x++ {
			fx := float64(x)
			if fx > float64(w)/2 {
				fx -= float64(w)
			}
			dist := math.Hypot(fx, fy)
			if dist < radius {
				data[y][x] = 0
			}
		}
	}
}
