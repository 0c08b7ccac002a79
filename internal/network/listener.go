// Package network receives binary IMU datagrams over UDP and replays them
// from packet captures.
package network

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/imu"
	"github.com/iDddddd/OpenLoong-Dyn-Control/internal/monitoring"
)

var logf = monitoring.Prefixed("network")

// Resetter is implemented by sinks that can discard their estimate. The
// listener calls Reset when a datagram carries imu.FlagResync.
type Resetter interface {
	Reset()
}

// UDPListener handles receiving and decoding IMU datagrams from UDP.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	conn        *net.UDPConn
	stats       PacketStatsInterface
	sink        imu.SampleSink
	ready       chan struct{}
}

// UDPListenerConfig contains configuration options for the UDP listener
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Stats       PacketStatsInterface
	Sink        imu.SampleSink
}

// NewUDPListener creates a new UDP listener with the provided configuration
func NewUDPListener(config UDPListenerConfig) *UDPListener {
	// Provide a no-op stats implementation when none is supplied to avoid
	// nil pointer dereferences in the packet handling and logging paths.
	var stats PacketStatsInterface
	if config.Stats != nil {
		stats = config.Stats
	} else {
		stats = &noopStats{}
	}

	logInterval := config.LogInterval
	if logInterval == 0 {
		logInterval = time.Minute
	}

	return &UDPListener{
		address:     config.Address,
		rcvBuf:      config.RcvBuf,
		logInterval: logInterval,
		stats:       stats,
		sink:        config.Sink,
		ready:       make(chan struct{}),
	}
}

// Ready is closed once the socket is bound.
func (l *UDPListener) Ready() <-chan struct{} { return l.ready }

// LocalAddr returns the bound address, or nil before Ready.
func (l *UDPListener) LocalAddr() net.Addr {
	select {
	case <-l.ready:
		return l.conn.LocalAddr()
	default:
		return nil
	}
}

// Start begins listening for UDP packets and processing them until ctx is done.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}

	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address: %w", err)
	}
	l.conn = conn
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			logf("Warning: Failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}

	logf("UDP listener started on %s with receive buffer %d bytes", conn.LocalAddr(), l.rcvBuf)
	close(l.ready)

	go l.startStatsLogging(ctx)

	buffer := make([]byte, 2048)

	for {
		select {
		case <-ctx.Done():
			logf("UDP listener stopping due to context cancellation")
			return ctx.Err()
		default:
			// Set read deadline to allow checking context cancellation
			conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

			n, from, err := conn.ReadFromUDP(buffer)
			if err != nil {
				var netErr net.Error
				if errors.As(err, &netErr) && netErr.Timeout() {
					continue // Continue on timeout to check context
				}
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logf("UDP read error: %v", err)
				continue
			}

			if err := HandleDatagram(buffer[:n], l.sink, l.stats); err != nil {
				logf("Error handling packet from %v: %v", from, err)
			}
		}
	}
}

// startStatsLogging periodically logs packet statistics.
func (l *UDPListener) startStatsLogging(ctx context.Context) {
	ticker := time.NewTicker(l.logInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.stats.LogStats()
		}
	}
}

// HandleDatagram decodes one datagram and delivers its sample to sink.
// Decode failures are counted as dropped and returned.
func HandleDatagram(data []byte, sink imu.SampleSink, stats PacketStatsInterface) error {
	stats.AddPacket(len(data))

	pkt, err := imu.DecodePacket(data)
	if err != nil {
		stats.AddDropped()
		return err
	}
	stats.AddSamples(1)

	if pkt.Flags&imu.FlagResync != 0 {
		if r, ok := sink.(Resetter); ok {
			r.Reset()
		}
	}
	if sink == nil {
		return nil
	}
	if err := sink.HandleSample(pkt.Sample); err != nil {
		stats.AddDropped()
		return fmt.Errorf("sink rejected sample %d: %w", pkt.Sample.Seq, err)
	}
	return nil
}
