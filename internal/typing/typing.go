// Package typing turns raw typing events into presence flags.
//
// Inbound: every user_typing event re-arms a 2s window per peer; the flag is
// active while the window is open and each peer expires independently.
// Outbound: input changes are throttled so at most one typing emission fires
// per second of continuous typing; events inside the window are suppressed,
// not queued.
package typing

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultTTL is how long a peer stays "typing" after their last signal.
const DefaultTTL = 2 * time.Second

// DefaultEmitWindow is the minimum spacing between outbound typing emissions.
const DefaultEmitWindow = time.Second

type peerState struct {
	until time.Time
	timer *time.Timer
}

// Debouncer tracks per-peer typing windows. Each peer owns a single expiry
// timer that is stopped and rescheduled on every new signal, so switching
// conversations never leaks timers.
type Debouncer struct {
	mu       sync.Mutex
	ttl      time.Duration
	now      func() time.Time
	peers    map[string]*peerState
	onChange func(peerID string, active bool)
	stopped  bool
}

// NewDebouncer creates a debouncer with the given window. onChange, if
// non-nil, fires on inactive→active and active→inactive edges.
func NewDebouncer(ttl time.Duration, onChange func(peerID string, active bool)) *Debouncer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Debouncer{
		ttl:      ttl,
		now:      time.Now,
		peers:    make(map[string]*peerState),
		onChange: onChange,
	}
}

// Touch registers a typing signal from peerID, re-arming its window.
func (d *Debouncer) Touch(peerID string) {
	d.mu.Lock()
	if d.stopped {
		d.mu.Unlock()
		return
	}
	st, known := d.peers[peerID]
	if !known {
		st = &peerState{}
		st.timer = time.AfterFunc(d.ttl, func() { d.expire(peerID) })
		d.peers[peerID] = st
	} else {
		st.timer.Stop()
		st.timer.Reset(d.ttl)
	}
	st.until = d.now().Add(d.ttl)
	notify := !known && d.onChange != nil
	d.mu.Unlock()

	if notify {
		d.onChange(peerID, true)
	}
}

// Active reports whether peerID is currently typing.
func (d *Debouncer) Active(peerID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	st, ok := d.peers[peerID]
	return ok && d.now().Before(st.until)
}

// Stop cancels every pending expiry timer. Further Touch calls are ignored.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	for id, st := range d.peers {
		st.timer.Stop()
		delete(d.peers, id)
	}
}

func (d *Debouncer) expire(peerID string) {
	d.mu.Lock()
	st, ok := d.peers[peerID]
	if !ok {
		d.mu.Unlock()
		return
	}
	if d.now().Before(st.until) {
		// Re-armed between the timer firing and us taking the lock.
		st.timer.Reset(st.until.Sub(d.now()))
		d.mu.Unlock()
		return
	}
	delete(d.peers, peerID)
	notify := d.onChange != nil
	d.mu.Unlock()

	if notify {
		d.onChange(peerID, false)
	}
}

// Throttler limits outbound typing emissions to one per window, suppressing
// the rest.
type Throttler struct {
	lim *rate.Limiter
}

// NewThrottler creates a throttler allowing one emission per window.
func NewThrottler(window time.Duration) *Throttler {
	if window <= 0 {
		window = DefaultEmitWindow
	}
	return &Throttler{lim: rate.NewLimiter(rate.Every(window), 1)}
}

// Allow reports whether an emission may fire now.
func (t *Throttler) Allow() bool {
	return t.lim.Allow()
}

// allowAt is Allow against an explicit clock, for tests.
func (t *Throttler) allowAt(ts time.Time) bool {
	return t.lim.AllowN(ts, 1)
}
