package trace

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
)

// ChannelSummary describes one channel of an estimate trace.
type ChannelSummary struct {
	Channel     string  `json:"channel"`
	RawMean     float64 `json:"raw_mean"`
	RawVariance float64 `json:"raw_variance"`
	Mean        float64 `json:"mean"`
	Variance    float64 `json:"variance"`
	// VarianceRatio is Variance/RawVariance, or 1 when the raw channel is
	// constant.
	VarianceRatio float64 `json:"variance_ratio"`
	// ResidualRMS is the RMS of raw minus filtered.
	ResidualRMS float64 `json:"residual_rms"`
}

// Summary describes an estimate trace.
type Summary struct {
	Samples  int               `json:"samples"`
	Duration float64           `json:"duration_s"`
	Channels [6]ChannelSummary `json:"channels"`
}

// Summarize computes per-channel statistics of ests, skipping the first
// skip samples so the filter transient can be excluded.
func Summarize(ests []imu.Estimate, skip int) Summary {
	if skip < 0 {
		skip = 0
	}
	if skip > len(ests) {
		skip = len(ests)
	}
	ests = ests[skip:]

	var sum Summary
	sum.Samples = len(ests)
	if len(ests) > 1 {
		sum.Duration = float64(ests[len(ests)-1].TimestampNanos-ests[0].TimestampNanos) / 1e9
	}

	raw := make([]float64, len(ests))
	filtered := make([]float64, len(ests))
	residual := make([]float64, len(ests))
	for c, name := range Channels {
		for i, e := range ests {
			raw[i] = rawChannel(e, c)
			filtered[i] = channel(e, c)
			residual[i] = raw[i] - filtered[i]
		}
		cs := ChannelSummary{Channel: name, VarianceRatio: 1}
		if len(ests) > 0 {
			cs.RawMean = stat.Mean(raw, nil)
			cs.Mean = stat.Mean(filtered, nil)
			cs.ResidualRMS = math.Sqrt(stat.Mean(squares(residual), nil))
		}
		if len(ests) > 1 {
			cs.RawVariance = stat.Variance(raw, nil)
			cs.Variance = stat.Variance(filtered, nil)
			if cs.RawVariance > 0 {
				cs.VarianceRatio = cs.Variance / cs.RawVariance
			}
		}
		sum.Channels[c] = cs
	}
	return sum
}

func squares(xs []float64) []float64 {
	out := make([]float64, len(xs))
	for i, x := range xs {
		out[i] = x * x
	}
	return out
}
