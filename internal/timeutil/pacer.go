package timeutil

import (
	"context"
	"time"
)

// Pacer releases a caller once per period against an absolute schedule, so
// per-sample processing time does not accumulate as drift. A caller that
// falls more than MaxLag behind is resynchronised to the current time
// instead of bursting to catch up.
type Pacer struct {
	clock  Clock
	period time.Duration
	next   time.Time
	MaxLag time.Duration
}

// NewPacer returns a Pacer that releases once per period.
func NewPacer(clock Clock, period time.Duration) *Pacer {
	return &Pacer{clock: clock, period: period, MaxLag: 100 * period}
}

// Wait blocks until the next slot. The first call returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := p.clock.Now()
	if p.next.IsZero() {
		p.next = now.Add(p.period)
		return nil
	}
	if lag := now.Sub(p.next); lag > p.MaxLag {
		p.next = now
	}
	if d := p.next.Sub(now); d > 0 {
		p.clock.Sleep(d)
	}
	p.next = p.next.Add(p.period)
	return ctx.Err()
}
