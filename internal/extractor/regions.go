package extractor

import "math/rand"

// sampleRandomRegions draws k non-deterministic regionSize x regionSize
// windows from gray, runs Laplacian noise extraction on each, and
// concatenates the results. Region placement is seeded from wall-clock
// time XORed with frame content (see regionSeed), so repeated extraction
// of the same frame samples different locations.
func sampleRandomRegions(gray [][]float64, k, regionSize int, seed uint64) []byte {
	h := len(gray)
	if h == 0 {
		return nil
	}
	w := len(gray[0])
	if w < regionSize || h < regionSize {
		return nil
	}

	rng := rand.New(rand.NewSource(int64(seed)))

	var out []byte
	for i := 0; i < k; i++ {
		y0 := rng.Intn(h - regionSize + 1)
		x0 := rng.Intn(w - regionSize + 1)

		region := make([][]float64, regionSize)
		for dy := 0; dy < regionSize; dy++ {
			row := make([]float64, regionSize)
			copy(row, gray[y0+dy][x0:x0+regionSize])
			region[dy] = row
		}
		out = append(out, laplacianNoise(region)...)
	}
	return out
}
