package mainloop

import (
	"time"
)

// Ticker calls fn every interval from the loop goroutine while it is
// running. A tick that is late by more than one interval is not repeated.
type Ticker struct {
	interval time.Duration
	fn       func()
	next     time.Time
	running  bool
}

// NewTicker registers a stopped ticker.
func (l *Loop) NewTicker(interval time.Duration, fn func()) *Ticker {
	t := &Ticker{interval: interval, fn: fn}
	l.tickers = append(l.tickers, t)
	return t
}

// Start is a no-op on a running ticker.
func (t *Ticker) Start() {
	if t.running {
		return
	}
	t.running = true
	t.next = time.Now().Add(t.interval)
}

func (t *Ticker) Stop() { t.running = false }

func (t *Ticker) Running() bool { return t.running }

func (t *Ticker) Interval() time.Duration { return t.interval }

// SetInterval takes effect after the next tick.
func (t *Ticker) SetInterval(d time.Duration) {
	if d > 0 {
		t.interval = d
	}
}

// pollTimeout is the poll timeout in milliseconds until the earliest
// running ticker is due, or -1 when none is running.
func (l *Loop) pollTimeout(now time.Time) int {
	timeout := -1
	for _, t := range l.tickers {
		if !t.running {
			continue
		}
		d := t.next.Sub(now)
		if d <= 0 {
			return 0
		}
		ms := int((d + time.Millisecond - 1) / time.Millisecond)
		if timeout < 0 || ms < timeout {
			timeout = ms
		}
	}
	return timeout
}

func (l *Loop) runTickers(now time.Time) {
	for _, t := range append([]*Ticker(nil), l.tickers...) {
		if !t.running || now.Before(t.next) {
			continue
		}
		t.next = t.next.Add(t.interval)
		if t.next.Before(now) {
			t.next = now.Add(t.interval)
		}
		t.fn()
	}
}
