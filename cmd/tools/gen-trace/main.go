// Command gen-trace writes a synthetic IMU sample trace for testing replay
// and the csv source of the service.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/sim"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/trace"
)

type options struct {
	Signal     string
	Samples    int
	TickPeriod float64
	Amplitude  float64
	FreqHz     float64
	AngleNoise float64
	RateNoise  float64
	Seed       int64
	Start      time.Time
}

// generate writes the noisy samples to w. With truth non-nil it also
// writes an estimate trace whose outputs are the noiseless signal.
func generate(opts options, w, truth io.Writer) (int, error) {
	signal, err := sim.ParseSignal(opts.Signal, opts.Amplitude, opts.FreqHz)
	if err != nil {
		return 0, err
	}
	gen, err := sim.NewGenerator(signal, sim.Config{
		TickPeriod: opts.TickPeriod,
		AngleNoise: opts.AngleNoise,
		RateNoise:  opts.RateNoise,
		Seed:       opts.Seed,
		Start:      opts.Start,
	})
	if err != nil {
		return 0, err
	}
	if opts.Samples <= 0 {
		return 0, fmt.Errorf("sample count must be positive, got %d", opts.Samples)
	}

	samples := gen.Samples(opts.Samples)
	if err := trace.WriteSamples(w, samples); err != nil {
		return 0, err
	}
	if truth != nil {
		ests := make([]imu.Estimate, len(samples))
		for i, s := range samples {
			angle, rate := gen.Truth(s.Seq)
			ests[i] = imu.Estimate{Seq: s.Seq, TimestampNanos: s.TimestampNanos, Angle: angle, Rate: rate, Raw: s}
		}
		if err := trace.WriteEstimates(truth, ests); err != nil {
			return 0, err
		}
	}
	return len(samples), nil
}

func main() {
	var opts options
	output := flag.String("o", "trace.csv", "output path")
	truthPath := flag.String("truth", "", "also write the noiseless signal as an estimate trace")
	flag.StringVar(&opts.Signal, "signal", "sine", "signal: constant, step or sine")
	flag.IntVar(&opts.Samples, "n", 10000, "number of samples")
	flag.Float64Var(&opts.TickPeriod, "tick", 0.001, "tick period in seconds")
	flag.Float64Var(&opts.Amplitude, "amplitude", 0.2, "angle amplitude, rad")
	flag.Float64Var(&opts.FreqHz, "freq", 0.5, "sine frequency, Hz")
	flag.Float64Var(&opts.AngleNoise, "angle-noise", 0.01, "angle noise std dev, rad")
	flag.Float64Var(&opts.RateNoise, "rate-noise", 0.03, "rate noise std dev, rad/s")
	flag.Int64Var(&opts.Seed, "seed", 1, "noise seed")
	flag.Parse()
	opts.Start = time.Now()

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("failed to create %s: %v", *output, err)
	}
	defer f.Close()

	var truth io.Writer
	if *truthPath != "" {
		tf, err := os.Create(*truthPath)
		if err != nil {
			log.Fatalf("failed to create %s: %v", *truthPath, err)
		}
		defer tf.Close()
		truth = tf
	}

	n, err := generate(opts, f, truth)
	if err != nil {
		log.Fatalf("failed to generate trace: %v", err)
	}
	log.Printf("✓ Created: %s (%d samples, %s)", *output, n, opts.Signal)
}
