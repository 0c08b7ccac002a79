package network

import (
	"fmt"
	"sync"
	"time"
)

// PacketStatsInterface provides packet statistics management
type PacketStatsInterface interface {
	AddPacket(bytes int)
	AddDropped()
	AddSamples(count int)
	LogStats()
}

// PacketStats tracks datagram statistics with thread-safe operations.
type PacketStats struct {
	mu           sync.Mutex
	packetCount  int64
	byteCount    int64
	droppedCount int64
	sampleCount  int64
	lastReset    time.Time
	totalSamples int64
}

// NewPacketStats creates a new PacketStats instance
func NewPacketStats() *PacketStats {
	return &PacketStats{
		lastReset: time.Now(),
	}
}

// AddPacket increments packet count and byte count
func (ps *PacketStats) AddPacket(bytes int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.packetCount++
	ps.byteCount += int64(bytes)
}

// AddDropped counts a datagram that could not be decoded or delivered.
func (ps *PacketStats) AddDropped() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.droppedCount++
}

// AddSamples increments the decoded sample count.
func (ps *PacketStats) AddSamples(count int) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sampleCount += int64(count)
	ps.totalSamples += int64(count)
}

// TotalSamples returns the number of samples decoded since creation.
func (ps *PacketStats) TotalSamples() int64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.totalSamples
}

// StatsSnapshot is one reporting interval of PacketStats.
type StatsSnapshot struct {
	Packets  int64
	Bytes    int64
	Dropped  int64
	Samples  int64
	Duration time.Duration
}

// GetAndReset returns current stats and resets the interval counters.
func (ps *PacketStats) GetAndReset() StatsSnapshot {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := time.Now()
	snap := StatsSnapshot{
		Packets:  ps.packetCount,
		Bytes:    ps.byteCount,
		Dropped:  ps.droppedCount,
		Samples:  ps.sampleCount,
		Duration: now.Sub(ps.lastReset),
	}

	ps.packetCount = 0
	ps.byteCount = 0
	ps.droppedCount = 0
	ps.sampleCount = 0
	ps.lastReset = now
	return snap
}

// String formats a snapshot as per-second rates.
func (s StatsSnapshot) String() string {
	secs := s.Duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	msg := fmt.Sprintf("IMU stats (/sec): %.1f KB, %.1f packets, %.1f samples",
		float64(s.Bytes)/secs/1024, float64(s.Packets)/secs, float64(s.Samples)/secs)
	if s.Dropped > 0 {
		msg += fmt.Sprintf(", %d dropped", s.Dropped)
	}
	return msg
}

// LogStats logs and resets the interval counters.
func (ps *PacketStats) LogStats() {
	snap := ps.GetAndReset()
	if snap.Packets > 0 || snap.Dropped > 0 {
		logf("%s", snap)
	}
}

// noopStats is a PacketStatsInterface implementation that does nothing.
// It is used as a safe default when no stats collector is provided.
type noopStats struct{}

func (n *noopStats) AddPacket(bytes int)  {}
func (n *noopStats) AddDropped()          {}
func (n *noopStats) AddSamples(count int) {}
func (n *noopStats) LogStats()            {}
