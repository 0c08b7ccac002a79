// Command trace-replay runs a recorded IMU trace through the orientation
// filter offline. The trace comes from a CSV file or a run stored in the
// service database. When the trace carries recorded filter outputs the
// replay is compared against them.
package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/config"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/db"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/report"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stateest"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/trace"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/version"
)

// Config holds the options of one replay.
type Config struct {
	InputCSV   string
	DBPath     string
	RunID      string
	ConfigPath string
	TickPeriod float64 // overrides the config or run tick period when > 0
	OutputCSV  string
	PlotDir    string
	HTMLPath   string
	Skip       int
	Tolerance  float64
	Compare    bool
}

// Result is printed as JSON at the end of a replay.
type Result struct {
	Source     string                `json:"source"`
	Samples    int                   `json:"samples"`
	TickPeriod float64               `json:"tick_period"`
	Filter     stateest.FilterConfig `json:"filter"`
	Summary    trace.Summary         `json:"summary"`
	Comparison *trace.Comparison     `json:"comparison,omitempty"`
	Match      *bool                 `json:"match,omitempty"`
	Outputs    []string              `json:"outputs,omitempty"`
}

func main() {
	var cfg Config
	flag.StringVar(&cfg.InputCSV, "in", "", "Input CSV trace (samples or estimates)")
	flag.StringVar(&cfg.DBPath, "db", "", "Database to read a recorded run from")
	flag.StringVar(&cfg.RunID, "run", "", "Run ID to replay from -db")
	flag.StringVar(&cfg.ConfigPath, "config", "", "Tuning config JSON (defaults are built in)")
	flag.Float64Var(&cfg.TickPeriod, "tick", 0, "Tick period override in seconds")
	flag.StringVar(&cfg.OutputCSV, "out", "", "Write replayed estimates to this CSV")
	flag.StringVar(&cfg.PlotDir, "plots", "", "Write angle and rate PNG plots into this directory")
	flag.StringVar(&cfg.HTMLPath, "html", "", "Write an interactive HTML chart to this path")
	flag.IntVar(&cfg.Skip, "skip", 0, "Samples to skip before computing summary statistics")
	flag.Float64Var(&cfg.Tolerance, "tol", 1e-9, "Maximum absolute error accepted by the comparison")
	flag.BoolVar(&cfg.Compare, "compare", true, "Compare against recorded outputs when the trace has them")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("trace-replay", version.String())
		return
	}
	if (cfg.InputCSV == "") == (cfg.RunID == "") {
		log.Fatal("exactly one of -in or -run is required")
	}

	res, err := replayTrace(cfg)
	if err != nil {
		log.Fatalf("replay failed: %v", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("failed to write result: %v", err)
	}

	if res.Match != nil && !*res.Match {
		log.Printf("replay differs from recorded outputs: max error %g > %g", res.Comparison.MaxError(), cfg.Tolerance)
		os.Exit(1)
	}
}

// loadTrace returns the raw samples, the recorded estimates when present,
// and the tick period stored with a database run (zero for CSV input).
func loadTrace(cfg Config) (samples []imu.Sample, recorded []imu.Estimate, tick float64, err error) {
	if cfg.RunID != "" {
		if cfg.DBPath == "" {
			return nil, nil, 0, fmt.Errorf("-run requires -db")
		}
		database, err := db.NewDB(cfg.DBPath)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to open database: %w", err)
		}
		defer database.Close()

		run, err := database.GetRun(cfg.RunID)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to load run %s: %w", cfg.RunID, err)
		}
		recorded, err = database.RunSamples(cfg.RunID, 0)
		if err != nil {
			return nil, nil, 0, fmt.Errorf("failed to load samples of run %s: %w", cfg.RunID, err)
		}
		return rawSamples(recorded), recorded, run.TickPeriod, nil
	}

	data, err := os.ReadFile(cfg.InputCSV)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to read trace: %w", err)
	}
	recorded, err = trace.ReadEstimates(bytes.NewReader(data))
	if err == nil {
		return rawSamples(recorded), recorded, 0, nil
	}
	if !errors.Is(err, trace.ErrMissingColumn) {
		return nil, nil, 0, err
	}
	samples, err = trace.ReadSamples(bytes.NewReader(data))
	return samples, nil, 0, err
}

func rawSamples(ests []imu.Estimate) []imu.Sample {
	out := make([]imu.Sample, len(ests))
	for i, e := range ests {
		out[i] = e.Raw
	}
	return out
}

func loadTuning(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}

func replayTrace(cfg Config) (*Result, error) {
	tuning, err := loadTuning(cfg.ConfigPath)
	if err != nil {
		return nil, err
	}
	samples, recorded, runTick, err := loadTrace(cfg)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("trace is empty")
	}

	tick := tuning.GetTickPeriod()
	if runTick > 0 {
		tick = runTick
	}
	if cfg.TickPeriod > 0 {
		tick = cfg.TickPeriod
	}
	filterCfg := stateest.FilterConfigFromTuning(tuning)

	replayed, err := trace.Replay(samples, tick, filterCfg)
	if err != nil {
		return nil, err
	}
	log.Printf("replayed %d samples at %gs", len(replayed), tick)

	res := &Result{
		Source:     cfg.InputCSV,
		Samples:    len(replayed),
		TickPeriod: tick,
		Filter:     filterCfg,
		Summary:    trace.Summarize(replayed, cfg.Skip),
	}
	if cfg.RunID != "" {
		res.Source = "run:" + cfg.RunID
	}

	if cfg.Compare && recorded != nil {
		cmp, err := trace.Compare(recorded, replayed)
		if err != nil {
			return nil, err
		}
		match := cmp.Within(cfg.Tolerance)
		res.Comparison = &cmp
		res.Match = &match
	}

	if cfg.OutputCSV != "" {
		if err := writeFile(cfg.OutputCSV, func(w io.Writer) error { return trace.WriteEstimates(w, replayed) }); err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, cfg.OutputCSV)
	}

	title := filepath.Base(res.Source)
	if cfg.PlotDir != "" {
		paths, err := report.SavePlots(cfg.PlotDir, "replay", title, replayed)
		if err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, paths...)
	}
	if cfg.HTMLPath != "" {
		if err := writeFile(cfg.HTMLPath, func(w io.Writer) error {
			return report.RenderHTML(w, title, replayed, 0)
		}); err != nil {
			return nil, err
		}
		res.Outputs = append(res.Outputs, cfg.HTMLPath)
	}
	return res, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
