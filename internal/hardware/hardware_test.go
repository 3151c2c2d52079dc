package hardware

import (
	"testing"

	"github.com/kenneth/solar-entropy-pool/internal/config"
	"github.com/stretchr/testify/require"
)

func TestAccelerationInfoIncludesArchitecture(t *testing.T) {
	info := AccelerationInfo(config.HardwareConfig{ReportAVX2: true, ReportNEON: true})
	require.Contains(t, info, "architecture")
	require.Contains(t, info, "avx2_available")
	require.Contains(t, info, "neon_available")
}

func TestAccelerationInfoRespectsDisabledFlags(t *testing.T) {
	info := AccelerationInfo(config.HardwareConfig{})
	require.NotContains(t, info, "avx2_available")
	require.NotContains(t, info, "neon_available")
}
