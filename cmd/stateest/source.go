package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strconv"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/config"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/network"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/pipeline"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/serialmux"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/sim"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/timeutil"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/trace"
)

// sampleSink is what every source feeds. The runner also resets on
// stream resync markers.
type sampleSink interface {
	imu.SampleSink
	Reset()
}

type sourceOptions struct {
	Kind      string
	Mux       serialmux.SerialMuxInterface
	PCAPPath  string
	TracePath string
	Tuning    *config.TuningConfig
	Clock     timeutil.Clock

	SimSignal string
	SimAmp    float64
	SimFreq   float64
	SimNoise  float64
	SimSeed   int64
	SimCount  int // 0 runs until cancelled
}

func validateSource(kind, pcapPath, tracePath string) error {
	switch kind {
	case "serial", "udp", "sim":
		return nil
	case "pcap":
		if pcapPath == "" {
			return fmt.Errorf("-source=pcap requires -pcap")
		}
		return nil
	case "csv":
		if tracePath == "" {
			return fmt.Errorf("-source=csv requires -trace")
		}
		return nil
	default:
		return fmt.Errorf("unknown source %q (want serial, udp, pcap, csv or sim)", kind)
	}
}

// udpPort extracts the port number from a listen address like ":9870".
func udpPort(addr string) (int, error) {
	_, p, err := net.SplitHostPort(addr)
	if err != nil {
		return 0, fmt.Errorf("bad UDP address %q: %w", addr, err)
	}
	n, err := strconv.Atoi(p)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("bad UDP port in %q", addr)
	}
	return n, nil
}

// runSource feeds samples from the selected source into sink until the
// source ends or ctx is done. It returns the number of samples delivered
// where the source counts them.
func runSource(ctx context.Context, opts sourceOptions, sink sampleSink) (int, error) {
	cfg := opts.Tuning
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	switch opts.Kind {
	case "serial":
		handler := &serialmux.LineHandler{Sink: sink, Status: &serialmux.DeviceStatus{}}
		err := handler.Forward(ctx, opts.Mux)
		return int(handler.Stats.Samples.Load()), err

	case "udp":
		stats := network.NewPacketStats()
		listener := network.NewUDPListener(network.UDPListenerConfig{
			Address: cfg.GetUDPAddress(),
			RcvBuf:  cfg.GetUDPRcvBuf(),
			Stats:   stats,
			Sink:    sink,
		})
		err := listener.Start(ctx)
		return int(stats.TotalSamples()), err

	case "pcap":
		port, err := udpPort(cfg.GetUDPAddress())
		if err != nil {
			return 0, err
		}
		return network.ReadPCAPFile(ctx, opts.PCAPPath, network.PCAPOptions{Port: port}, sink, network.NewPacketStats())

	case "csv":
		f, err := os.Open(opts.TracePath)
		if err != nil {
			return 0, fmt.Errorf("failed to open trace: %w", err)
		}
		samples, err := trace.ReadSamples(f)
		f.Close()
		if err != nil {
			return 0, fmt.Errorf("failed to read trace %s: %w", opts.TracePath, err)
		}
		pacer := timeutil.NewPacer(clock, cfg.GetTickDuration())
		return pipeline.Feed(ctx, pipeline.SliceSource(samples), sink, pacer)

	case "sim":
		signal, err := sim.ParseSignal(opts.SimSignal, opts.SimAmp, opts.SimFreq)
		if err != nil {
			return 0, err
		}
		gen, err := sim.NewGenerator(signal, sim.Config{
			TickPeriod: cfg.GetTickPeriod(),
			AngleNoise: opts.SimNoise,
			RateNoise:  3 * opts.SimNoise,
			Seed:       opts.SimSeed,
			Start:      clock.Now(),
		})
		if err != nil {
			return 0, err
		}
		var produced int
		src := func() (imu.Sample, bool) {
			if opts.SimCount > 0 && produced >= opts.SimCount {
				return imu.Sample{}, false
			}
			produced++
			return gen.Next(), true
		}
		pacer := timeutil.NewPacer(clock, cfg.GetTickDuration())
		return pipeline.Feed(ctx, src, sink, pacer)

	default:
		return 0, fmt.Errorf("unknown source %q", opts.Kind)
	}
}
