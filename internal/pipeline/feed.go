package pipeline

import (
	"context"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/timeutil"
)

// SampleSource yields samples in order. ok is false once exhausted.
type SampleSource func() (s imu.Sample, ok bool)

// SliceSource returns a SampleSource over samples.
func SliceSource(samples []imu.Sample) SampleSource {
	i := 0
	return func() (imu.Sample, bool) {
		if i >= len(samples) {
			return imu.Sample{}, false
		}
		s := samples[i]
		i++
		return s, true
	}
}

// Feed delivers samples from src to sink. With a non-nil pacer each sample
// waits for its slot, reproducing the tick period in real time; a nil pacer
// delivers as fast as sink accepts. It returns the number delivered.
func Feed(ctx context.Context, src SampleSource, sink imu.SampleSink, pacer *timeutil.Pacer) (int, error) {
	n := 0
	for {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		s, ok := src()
		if !ok {
			return n, nil
		}
		if pacer != nil {
			if err := pacer.Wait(ctx); err != nil {
				return n, err
			}
		}
		if err := sink.HandleSample(s); err != nil {
			return n, err
		}
		n++
	}
}
