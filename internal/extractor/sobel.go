package extractor

import "math"

var sobelX = [3][3]float64{
	{-1, 0, 1},
	{-2, 0, 2},
	{-1, 0, 1},
}

var sobelY = [3][3]float64{
	{-1, -2, -1},
	{0, 0, 0},
	{1, 2, 1},
}

// sobelGradient computes the Sobel gradient magnitude sqrt(gx^2+gy^2) at
// every pixel of a grayscale image, normalized to bytes.
func sobelGradient(gray [][]float64) []byte {
	h := len(gray)
	if h == 0 {
		return nil
	}
	w := len(gray[0])

	mag := make([][]float64, h)
	for y := 0; y < h; y++ {
		mag[y] = make([]float64, w)
		for x := 0; x < w; x++ {
			var gx, gy float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v := at(gray, y+ky, x+kx)
					gx += sobelX[ky+1][kx+1] * v
					gy += sobelY[ky+1][kx+1] * v
				}
			}
			mag[y][x] = math.Sqrt(gx*gx + gy*gy)
		}
	}
	return normalizeToBytes(mag)
}
