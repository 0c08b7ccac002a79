// Package serialmux provides an abstraction over the IMU serial port with the
// ability for multiple clients to subscribe to lines from the port and send
// commands to the single device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"tailscale.com/tsweb"
)

var ErrWriteFailed = fmt.Errorf("failed to write to serial port")

//go:embed templates/*
var adminTemplateFS embed.FS

var sendCommandTemplate = template.Must(template.ParseFS(adminTemplateFS, "templates/send-command.html.tmpl"))

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to events from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
	streamRateHz int
	bufferSize   int

	linesRead    atomic.Uint64
	linesDropped atomic.Uint64
}

// DefaultStreamRateHz is the sample rate requested by Initialize unless
// overridden with SetStreamRate.
const DefaultStreamRateHz = 1000

// DefaultSubscriberBuffer is the per-subscriber line buffer. Lines are
// dropped for a subscriber whose buffer is full.
const DefaultSubscriberBuffer = 256

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads lines from the serial port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// Initialize configures the device output and starts the sample stream.
	Initialize() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux instance backed by a serial port at the
// given path.
func NewSerialMux[T SerialPorter](port T) *SerialMux[T] {
	return &SerialMux[T]{
		port:         port,
		subscribers:  make(map[string]chan string),
		streamRateHz: DefaultStreamRateHz,
		bufferSize:   DefaultSubscriberBuffer,
	}
}

// SetStreamRate sets the sample rate requested by Initialize.
func (s *SerialMux[T]) SetStreamRate(hz int) {
	if hz > 0 {
		s.streamRateHz = hz
	}
}

// randomID generates a subscriber ID.
func randomID() string {
	return uuid.NewString()
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, s.bufferSize)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize stops any running stream, syncs the device clock to the host,
// selects CSV output in radians and restarts the stream at the configured
// rate so that every line can be parsed by imu.ParseLine.
func (s *SerialMux[T]) Initialize() error {
	if err := s.SendCommand(CmdStop); err != nil {
		return fmt.Errorf("failed to stop stream: %w", err)
	}

	if err := s.SendCommand(SyncCommand(time.Now())); err != nil {
		return fmt.Errorf("failed to synchronize clock: %w", err)
	}

	for _, command := range []string{
		CmdFormatCSV,
		CmdUnitsRadians,
		RateCommand(s.streamRateHz),
		CmdStart,
	} {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send start command %q: %w", command, err)
		}
	}

	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the port and fans them out to subscribers until
// ctx is done, the port reaches EOF or the mux is closed. Trailing carriage
// returns are stripped and blank lines dropped. A subscriber whose buffer
// is full misses the line rather than stalling the port.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)

	lines := make(chan string)
	scanErr := make(chan error, 1)

	// Scan blocks on the port, so it runs apart from the select below.
	go func() {
		defer close(lines)
		for scan.Scan() {
			line := strings.TrimRight(scan.Text(), "\r")
			if line == "" {
				continue
			}
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErr <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErr:
			return err

		case line, ok := <-lines:
			if !ok {
				return scan.Err()
			}
			if s.isClosing() {
				return nil
			}
			s.linesRead.Add(1)

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					s.linesDropped.Add(1)
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) isClosing() bool {
	s.closingMu.Lock()
	defer s.closingMu.Unlock()
	return s.closing
}

// LineCounts returns how many lines Monitor has read and how many
// subscriber deliveries were dropped on full buffers.
func (s *SerialMux[T]) LineCounts() (read, dropped uint64) {
	return s.linesRead.Load(), s.linesDropped.Load()
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// Basic command / live tail monitor interface using the below two API endpoints.
	debug.HandleFunc("send-command", "send a command to the serial port", func(w http.ResponseWriter, r *http.Request) {
		buf := bytes.NewBuffer(nil)
		if err := sendCommandTemplate.Execute(buf, nil); err != nil {
			http.Error(w, "Failed to render template", http.StatusInternalServerError)
			return
		}
		io.Copy(w, buf)
	})

	// API endpoint to write command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if !IsAllowedCommand(command) {
			http.Error(w, "Command not allowed", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, "Failed to write command", http.StatusInternalServerError)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})
	// API endpoint to issue Server-Side Events (SSE) in response to lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		// Send initial ping to establish connection
		w.Write([]byte(": ping\n\n"))
		w.(http.Flusher).Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					// Channel closed, exit gracefully
					return
				}
				_, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload)))
				if err != nil {
					return
				}
				w.(http.Flusher).Flush()
			case <-r.Context().Done():
				return
			}
		}
	})

	debug.HandleSilentFunc("tail.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/javascript")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		// serve tail.js from adminTemplateFS
		f, err := adminTemplateFS.Open("templates/tail.js")
		if err != nil {
			http.Error(w, "Failed to open tail.js", http.StatusInternalServerError)
			return
		}
		defer f.Close()
		io.Copy(w, f)
	})
}
