// Package hardware reports CPU feature availability relevant to BLAKE3
// hashing throughput (the conditioner's whitening hot path).
package hardware

import (
	"runtime"

	"github.com/kenneth/solar-entropy-pool/internal/config"
	"golang.org/x/sys/cpu"
)

// HasAVX2 reports whether the CPU supports AVX2, which BLAKE3's SIMD
// implementation uses on amd64 to process multiple chunks in parallel.
func HasAVX2() bool {
	switch runtime.GOARCH {
	case "amd64":
		return cpu.X86.HasAVX2
	default:
		return false
	}
}

// HasNEON reports whether the CPU supports ARM NEON, which BLAKE3 uses on
// arm64 for the same purpose as AVX2 on amd64.
func HasNEON() bool {
	switch runtime.GOARCH {
	case "arm64":
		return cpu.ARM64.HasASIMD
	default:
		return false
	}
}

// AccelerationInfo returns diagnostic information about hash acceleration,
// suitable for inclusion in the health endpoint.
func AccelerationInfo(cfg config.HardwareConfig) map[string]interface{} {
	info := map[string]interface{}{
		"architecture": runtime.GOARCH,
		"goos":         runtime.GOOS,
		"go_version":   runtime.Version(),
	}
	if cfg.ReportAVX2 {
		info["avx2_available"] = HasAVX2()
	}
	if cfg.ReportNEON {
		info["neon_available"] = HasNEON()
	}
	return info
}
