// Package validator scores conditioned entropy blocks against statistical
// randomness tests before they are admitted into the pool.
package validator

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrEmptyInput names the empty-input error kind. Validate does not return
// it; it reports empty input through Result.Error ("Empty data").
var ErrEmptyInput = errors.New("validator: empty data")

// Result holds the outcome of validating one block.
type Result struct {
	ShannonEntropy float64
	ChiSquare      float64
	ChiSquareScore float64
	RunsScore      float64
	AutocorrScore  float64
	BitScore       float64
	QualityScore   float64
	Passed         bool
	Error          string
}

// Config holds the acceptance thresholds used by Validate.
type Config struct {
	MinShannonEntropy float64
	MinQualityScore   float64
}

// Validator scores byte blocks using five independent statistical tests,
// combined into a single weighted quality score.
type Validator struct {
	cfg Config
}

// New returns a Validator using the given acceptance thresholds.
func New(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate runs all five tests against data and applies the pass predicate:
// Shannon entropy must meet the configured minimum AND the combined quality
// score must meet the configured MinQualityScore.
func (v *Validator) Validate(data []byte) Result {
	if len(data) == 0 {
		return Result{Passed: false, QualityScore: 0, Error: "Empty data"}
	}

	shannon := shannonEntropy(data)
	chiSq, chiScore := chiSquareTest(data)
	runsScore := runsTest(data)
	autocorrScore := autocorrelationTest(data)
	bitScore := bitEntropyTest(data)

	quality := 0.4*normalizeShannon(shannon) + 0.25*chiScore + 0.15*runsScore + 0.10*autocorrScore + 0.10*bitScore

	passed := shannon >= v.cfg.MinShannonEntropy && quality >= v.cfg.MinQualityScore

	return Result{
		ShannonEntropy: shannon,
		ChiSquare:      chiSq,
		ChiSquareScore: chiScore,
		RunsScore:      runsScore,
		AutocorrScore:  autocorrScore,
		BitScore:       bitScore,
		QualityScore:   quality,
		Passed:         passed,
	}
}

// BatchValidate validates each block independently.
func (v *Validator) BatchValidate(blocks [][]byte) []Result {
	results := make([]Result, len(blocks))
	for i, b := range blocks {
		results[i] = v.Validate(b)
	}
	return results
}

// normalizeShannon maps the 0..8 bits/byte Shannon entropy range onto 0..1
// for inclusion in the weighted quality score.
func normalizeShannon(bitsPerByte float64) float64 {
	n := bitsPerByte / 8.0
	if n > 1 {
		n = 1
	}
	if n < 0 {
		n = 0
	}
	return n
}

// shannonEntropy computes the Shannon entropy of data in bits per byte.
func shannonEntropy(data []byte) float64 {
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	n := float64(len(data))
	var entropy float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		entropy -= p * math.Log2(p)
	}
	return entropy
}

// chiSquareTest requires at least 256 bytes to be meaningful; below that it
// reports a zero score rather than a statistically unsupported verdict.
func chiSquareTest(data []byte) (chiSquare, score float64) {
	if len(data) < 256 {
		return 0, 0
	}
	var freq [256]int
	for _, b := range data {
		freq[b]++
	}
	expected := float64(len(data)) / 256.0
	for _, c := range freq {
		d := float64(c) - expected
		chiSquare += d * d / expected
	}
	// 255 degrees of freedom; score decays as chi-square departs from that.
	score = 1.0 / (1.0 + math.Abs(chiSquare-255.0)/100.0)
	return chiSquare, score
}

// runsTest requires at least 10 bytes; below that it reports a zero score.
// Data is binarized at its median byte value, and the Wald-Wolfowitz runs
// statistic is converted to a z-score-based pass score.
func runsTest(data []byte) float64 {
	if len(data) < 10 {
		return 0
	}

	median := medianByte(data)

	bits := make([]bool, len(data))
	n1, n0 := 0, 0
	for i, b := range data {
		bits[i] = b > median
		if bits[i] {
			n1++
		} else {
			n0++
		}
	}
	if n1 == 0 || n0 == 0 {
		return 0
	}

	runs := 1
	for i := 1; i < len(bits); i++ {
		if bits[i] != bits[i-1] {
			runs++
		}
	}

	n := float64(n1 + n0)
	expectedRuns := (2.0*float64(n1)*float64(n0))/n + 1.0
	variance := (2.0 * float64(n1) * float64(n0) * (2.0*float64(n1)*float64(n0) - n)) / (n * n * (n - 1.0))
	if variance <= 0 {
		return 0
	}

	z := math.Abs(float64(runs)-expectedRuns) / math.Sqrt(variance)
	score := 1.0 - z/4.0
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score
}

// autocorrelationTest scores the lag-1 Pearson autocorrelation: values near
// zero (no linear dependence between adjacent bytes) score near 1.
func autocorrelationTest(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	xs := make([]float64, len(data)-1)
	ys := make([]float64, len(data)-1)
	for i := 0; i < len(data)-1; i++ {
		xs[i] = float64(data[i])
		ys[i] = float64(data[i+1])
	}

	corr := stat.Correlation(xs, ys, nil)
	if math.IsNaN(corr) {
		corr = 0
	}
	score := 1.0 - math.Abs(corr)
	if score < 0 {
		score = 0
	}
	return score
}

// bitEntropyTest scores the overall set-bit ratio: a perfectly balanced
// stream of bits (ratio 0.5) scores 1.
func bitEntropyTest(data []byte) float64 {
	var ones, total int
	for _, b := range data {
		for i := 0; i < 8; i++ {
			if b&(1<<uint(i)) != 0 {
				ones++
			}
			total++
		}
	}
	if total == 0 {
		return 0
	}
	ratio := float64(ones) / float64(total)
	score := 1.0 - 2.0*math.Abs(ratio-0.5)
	if score < 0 {
		score = 0
	}
	return score
}

func medianByte(data []byte) byte {
	sorted := make([]byte, len(data))
	copy(sorted, data)
	// Insertion sort is adequate here: callers pass block-sized (KiB-scale)
	// inputs, not unbounded streams.
	for i := 1; i < len(sorted); i++ {
		v := sorted[i]
		j := i - 1
		for j >= 0 && sorted[j] > v {
			sorted[j+1] = sorted[j]
			j--
		}
		sorted[j+1] = v
	}
	return sorted[len(sorted)/2]
}
