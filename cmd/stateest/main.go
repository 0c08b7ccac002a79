// Command stateest runs the biped orientation filter as a service. Samples
// arrive from a serial IMU, UDP datagrams, a PCAP capture, a CSV trace or the
// built-in simulator; estimates are served over HTTP and gRPC and can be
// recorded to SQLite.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/api"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/config"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/db"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/pipeline"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/serialmux"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stateest"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/stream"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/version"
)

var (
	configPath  = flag.String("config", "", "Path to a tuning config JSON file (defaults are built in)")
	source      = flag.String("source", "serial", "Sample source: serial, udp, pcap, csv or sim")
	port        = flag.String("port", "/dev/ttyUSB0", "Serial port for -source=serial")
	pcapFile    = flag.String("pcap", "", "Capture file for -source=pcap")
	traceFile   = flag.String("trace", "", "CSV trace for -source=csv")
	listen      = flag.String("listen", ":8080", "HTTP listen address")
	grpcListen  = flag.String("grpc-listen", ":50051", "gRPC listen address (empty disables)")
	dbPath      = flag.String("db", "stateest.db", "SQLite database path (empty disables storage)")
	record      = flag.Bool("record", false, "Record estimates to a new run in the database")
	notes       = flag.String("notes", "", "Notes stored with a recorded run")
	simSignal   = flag.String("sim-signal", "sine", "Signal for -source=sim: constant, step or sine")
	simAmp      = flag.Float64("sim-amplitude", 0.2, "Angle amplitude for -source=sim, rad")
	simFreq     = flag.Float64("sim-freq", 0.5, "Sine frequency for -source=sim, Hz")
	simNoise    = flag.Float64("sim-noise", 0.01, "Angle noise std dev for -source=sim, rad (rate noise is 3x)")
	simSeed     = flag.Int64("sim-seed", 1, "Noise seed for -source=sim")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println("stateest", version.String())
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if err := validateSource(*source, *pcapFile, *traceFile); err != nil {
		log.Fatal(err)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	filterCfg := stateest.FilterConfigFromTuning(cfg)
	tickPeriod := cfg.GetTickPeriod()
	log.Printf("stateest %s: source=%s tick=%gs", version.String(), *source, tickPeriod)

	var database *db.DB
	if *dbPath != "" {
		database, err = db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()
	} else if *record {
		log.Fatal("-record requires -db")
	}

	var recorder *db.Recorder
	if *record {
		run, err := database.CreateRun(*source, tickPeriod, filterCfg, *notes)
		if err != nil {
			log.Fatalf("Failed to create run: %v", err)
		}
		recorder = db.NewRecorder(database, run.RunID, db.RecorderConfig{
			BatchSize:     cfg.GetRecordBatchSize(),
			FlushInterval: cfg.GetRecordFlushInterval(),
		})
		log.Printf("Recording to run %s", run.RunID)
	}

	publisher := pipeline.NewPublisher()
	runnerCfg := pipeline.Config{
		TickPeriod: tickPeriod,
		Filter:     filterCfg,
		Publisher:  publisher,
	}
	if recorder != nil {
		runnerCfg.Recorder = recorder
	}
	runner, err := pipeline.NewRunner(runnerCfg)
	if err != nil {
		log.Fatalf("Failed to create filter: %v", err)
	}

	var m serialmux.SerialMuxInterface = serialmux.NewDisabledSerialMux()
	if *source == "serial" {
		sm, err := serialmux.NewRealSerialMux(*port, serialmux.PortOptions{BaudRate: cfg.GetSerialBaudRate()})
		if err != nil {
			log.Fatalf("Failed to open serial port %s: %v", *port, err)
		}
		sm.SetStreamRate(cfg.GetStreamRateHz())
		m = sm
	}
	defer m.Close()

	if err := m.Initialize(); err != nil {
		log.Fatalf("Failed to initialize device: %v", err)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The filter goroutine. Subscribers are released once it stops.
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("filter runner error: %v", err)
		}
		publisher.Close()
		log.Print("filter routine terminated")
	}()

	if recorder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := recorder.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("recorder error: %v", err)
			}
			log.Print("recorder routine terminated")
		}()
	}

	if *source == "serial" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := m.Monitor(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("failed to monitor serial port: %v", err)
			}
			log.Print("monitor routine terminated")
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := runSource(ctx, sourceOptions{
			Kind:      *source,
			Mux:       m,
			PCAPPath:  *pcapFile,
			TracePath: *traceFile,
			Tuning:    cfg,
			SimSignal: *simSignal,
			SimAmp:    *simAmp,
			SimFreq:   *simFreq,
			SimNoise:  *simNoise,
			SimSeed:   *simSeed,
		}, runner)
		if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, pipeline.ErrStopped) {
			log.Printf("source %s failed: %v", *source, err)
			return
		}
		log.Printf("source %s finished after %d samples", *source, n)
	}()

	if *grpcListen != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			srv := stream.NewServer(runner, publisher, cfg.GetPublishBuffer())
			if err := stream.Serve(ctx, *grpcListen, srv); err != nil {
				log.Printf("gRPC server error: %v", err)
			}
			log.Print("gRPC routine terminated")
		}()
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(runner, api.Options{
			SerialMux: m,
			DB:        database,
			Publisher: publisher,
			Source:    *source,
		}).ServeMux()

		m.AttachAdminRoutes(mux)
		if database != nil {
			if err := database.AttachAdminRoutes(mux); err != nil {
				log.Printf("failed to attach db admin routes: %v", err)
			}
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
			if err := server.Close(); err != nil {
				log.Printf("HTTP server force close error: %v", err)
			}
		}
		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()

	if recorder != nil {
		if err := recorder.Flush(); err != nil {
			log.Printf("final flush failed: %v", err)
		}
		log.Printf("Recorded %d estimates to run %s (%d dropped)", recorder.Written(), recorder.RunID(), recorder.Dropped())
	}
	log.Printf("Graceful shutdown complete")
}

func loadConfig(path string) (*config.TuningConfig, error) {
	if path == "" {
		return config.DefaultTuningConfig(), nil
	}
	return config.LoadTuningConfig(path)
}
