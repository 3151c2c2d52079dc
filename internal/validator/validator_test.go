package validator

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func defaultValidator() *Validator {
	return New(Config{MinShannonEntropy: 7.8, MinQualityScore: 0.75})
}

func TestValidateEmptyInputFails(t *testing.T) {
	v := defaultValidator()
	res := v.Validate(nil)
	require.False(t, res.Passed)
	require.Equal(t, 0.0, res.QualityScore)
	require.Equal(t, "Empty data", res.Error)
}

func TestValidateConstantDataFailsEntropy(t *testing.T) {
	v := defaultValidator()
	data := make([]byte, 1024)
	res := v.Validate(data)
	require.False(t, res.Passed)
	require.Equal(t, 0.0, res.ShannonEntropy)
}

func TestValidateRandomDataLikelyPasses(t *testing.T) {
	v := defaultValidator()
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	res := v.Validate(data)
	require.True(t, res.ShannonEntropy > 7.5)
	require.True(t, res.Passed, "expected crypto/rand output to pass validation, got quality=%f shannon=%f", res.QualityScore, res.ShannonEntropy)
}

func TestValidateMonotonicWithRepeatedPattern(t *testing.T) {
	v := defaultValidator()

	random := make([]byte, 2048)
	_, err := rand.Read(random)
	require.NoError(t, err)

	patterned := make([]byte, 2048)
	for i := range patterned {
		patterned[i] = byte(i % 2)
	}

	randomResult := v.Validate(random)
	patternedResult := v.Validate(patterned)

	require.True(t, randomResult.QualityScore > patternedResult.QualityScore)
}

func TestBatchValidateMatchesIndividualResults(t *testing.T) {
	v := defaultValidator()
	a := make([]byte, 512)
	b := make([]byte, 512)
	_, _ = rand.Read(a)
	_, _ = rand.Read(b)

	batch := v.BatchValidate([][]byte{a, b})
	require.Len(t, batch, 2)
	require.Equal(t, v.Validate(a), batch[0])
	require.Equal(t, v.Validate(b), batch[1])
}

func TestChiSquareTestRequiresMinimumLength(t *testing.T) {
	_, score := chiSquareTest(make([]byte, 100))
	require.Equal(t, 0.0, score)
}

func TestRunsTestRequiresMinimumLength(t *testing.T) {
	require.Equal(t, 0.0, runsTest(make([]byte, 5)))
}

func TestBitEntropyPerfectlyBalancedScoresOne(t *testing.T) {
	data := []byte{0xAA, 0x55, 0xAA, 0x55}
	require.Equal(t, 1.0, bitEntropyTest(data))
}
