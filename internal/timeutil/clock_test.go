package timeutil

import (
	"context"
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)
	d := clock.Since(past)

	if d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestRealClock_NewTicker(t *testing.T) {
	clock := RealClock{}
	ticker := clock.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	select {
	case <-ticker.C():
		// Ticker fired as expected
	case <-time.After(100 * time.Millisecond):
		t.Error("ticker did not fire")
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	clock := NewMockClock(start)
	clock.Advance(time.Hour)

	if got := clock.Since(start); got != time.Hour {
		t.Errorf("Since() = %v, want 1h", got)
	}
}

func TestMockClock_Sleep(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)
	clock.Sleep(time.Second)
	clock.Sleep(2 * time.Second)

	sleeps := clock.Sleeps()
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 2*time.Second {
		t.Errorf("Sleeps() = %v", sleeps)
	}
	if !clock.Now().Equal(start) {
		t.Error("Sleep should not advance the clock by default")
	}

	clock.AdvanceOnSleep = true
	clock.Sleep(time.Second)
	if got := clock.Since(start); got != time.Second {
		t.Errorf("AdvanceOnSleep: Since() = %v, want 1s", got)
	}
}

func TestMockClock_Ticker(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Second)

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
		t.Fatal("ticker fired early")
	default:
	}

	clock.Advance(500 * time.Millisecond)
	select {
	case <-ticker.C():
	default:
		t.Fatal("ticker did not fire")
	}

	ticker.Stop()
	clock.Advance(5 * time.Second)
	select {
	case <-ticker.C():
		t.Fatal("stopped ticker fired")
	default:
	}
}

func TestMockTicker_Trigger(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	ticker := clock.NewTicker(time.Hour).(*MockTicker)
	want := time.Unix(42, 0)
	ticker.Trigger(want)

	if got := <-ticker.C(); !got.Equal(want) {
		t.Errorf("Trigger delivered %v, want %v", got, want)
	}
}

func TestPacer_SleepsToSchedule(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPacer(clock, time.Millisecond)
	ctx := context.Background()

	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	// 0.4ms of work, then the pacer sleeps the remaining 0.6ms.
	clock.Advance(400 * time.Microsecond)
	if err := p.Wait(ctx); err != nil {
		t.Fatal(err)
	}
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != 600*time.Microsecond {
		t.Fatalf("Sleeps() = %v, want [600µs]", sleeps)
	}
}

func TestPacer_NoDriftWithAdvanceOnSleep(t *testing.T) {
	start := time.Unix(0, 0)
	clock := NewMockClock(start)
	clock.AdvanceOnSleep = true
	p := NewPacer(clock, time.Millisecond)

	for i := 0; i < 1000; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if got := clock.Since(start); got != 999*time.Millisecond {
		t.Errorf("elapsed %v after 1000 waits, want 999ms", got)
	}
}

func TestPacer_ResyncsWhenFarBehind(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPacer(clock, time.Millisecond)
	_ = p.Wait(context.Background())

	clock.Advance(time.Second)
	_ = p.Wait(context.Background())
	_ = p.Wait(context.Background())

	// No catch-up burst: after resync the next slot is one period ahead.
	sleeps := clock.Sleeps()
	if len(sleeps) != 1 || sleeps[0] != time.Millisecond {
		t.Errorf("Sleeps() = %v, want [1ms]", sleeps)
	}
}

func TestPacer_Cancelled(t *testing.T) {
	clock := NewMockClock(time.Unix(0, 0))
	p := NewPacer(clock, time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.Wait(ctx); err == nil {
		t.Error("Wait on cancelled context returned nil")
	}
}
