package importer

import (
	"sync"
	"time"

	"github.com/fruitsalade/fruitsalade/wsagent/internal/clock"
	"github.com/fruitsalade/fruitsalade/wsagent/internal/metrics"
)

// DefaultProgressDelay is the minimum time between two progress broadcasts.
const DefaultProgressDelay = 300 * time.Millisecond

// LineConsumer receives progress output of an import, one line at a time.
type LineConsumer interface {
	WriteLine(line string)
	Close()
}

// LineConsumerFunc adapts a function to LineConsumer. Close is a no-op.
type LineConsumerFunc func(line string)

func (f LineConsumerFunc) WriteLine(line string) { f(line) }
func (f LineConsumerFunc) Close()                {}

// Discard drops every line.
var Discard LineConsumer = LineConsumerFunc(func(string) {})

// RateLimited forwards lines to a broadcast function at most once per
// delay. A line written while a window is open replaces the pending line;
// when the window closes the latest pending line is broadcast. After an
// idle period longer than delay the next line goes out immediately.
type RateLimited struct {
	clock     clock.Clock
	delay     time.Duration
	broadcast func(line string)

	mu         sync.Mutex
	last       time.Time
	sent       bool
	pending    string
	hasPending bool
	timer      *clock.Timer
	closed     bool
}

// NewRateLimited returns a consumer that broadcasts through fn. A nil clock
// means the real clock and a non-positive delay means DefaultProgressDelay.
func NewRateLimited(c clock.Clock, delay time.Duration, fn func(line string)) *RateLimited {
	if c == nil {
		c = clock.Real()
	}
	if delay <= 0 {
		delay = DefaultProgressDelay
	}
	return &RateLimited{clock: c, delay: delay, broadcast: fn}
}

// WriteLine broadcasts line now or holds it as the pending line of the
// current window.
func (r *RateLimited) WriteLine(line string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}

	now := r.clock.Now()
	if r.timer == nil {
		wait := r.delay - now.Sub(r.last)
		if !r.sent || wait <= 0 {
			r.emitLocked(line, now)
			return
		}
		r.timer = r.clock.AfterFunc(wait, r.flush)
	}
	r.pending = line
	r.hasPending = true
}

func (r *RateLimited) flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.timer = nil
	if r.hasPending && !r.closed {
		r.emitLocked(r.pending, r.clock.Now())
	}
}

func (r *RateLimited) emitLocked(line string, now time.Time) {
	r.pending = ""
	r.hasPending = false
	r.last = now
	r.sent = true
	r.broadcast(line)
	metrics.RecordImportProgressBroadcast()
}

// Close broadcasts any pending line and stops the consumer. Lines written
// after Close are dropped.
func (r *RateLimited) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	if r.hasPending {
		r.emitLocked(r.pending, r.clock.Now())
	}
	r.closed = true
}
