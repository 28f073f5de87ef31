package fs

import (
	"sync"
	"time"

	"github.com/rasher/reddit-modbot/pkg/core"
)

// debouncer coalesces bursts of events for the same path. Editors typically
// produce several writes (or a rename dance) per save; only the last event of
// a burst is delivered, once the path has been quiet for the delay.
type debouncer struct {
	delay time.Duration

	mu      sync.Mutex
	pending map[string]*pendingEvent
	stopped bool
	wg      sync.WaitGroup
}

type pendingEvent struct {
	event core.RuleEvent
	timer *time.Timer
}

func newDebouncer(delay time.Duration) *debouncer {
	return &debouncer{
		delay:   delay,
		pending: make(map[string]*pendingEvent),
	}
}

// add schedules fire for event, replacing any pending event for the same path.
func (d *debouncer) add(event core.RuleEvent, fire func(core.RuleEvent)) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}
	if p, ok := d.pending[event.Path]; ok {
		p.event = event
		if p.timer.Stop() {
			p.timer.Reset(d.delay)
			return
		}
		// The timer already fired and its callback is waiting for the lock;
		// schedule a fresh one for this event.
	}

	p := &pendingEvent{event: event}
	d.pending[event.Path] = p
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.delay, func() {
		defer d.wg.Done()

		d.mu.Lock()
		if d.pending[event.Path] != p {
			d.mu.Unlock()
			return
		}
		delete(d.pending, event.Path)
		ev := p.event
		d.mu.Unlock()

		fire(ev)
	})
}

// stopAndWait drops pending events and waits up to timeout for callbacks
// already in flight.
func (d *debouncer) stopAndWait(timeout time.Duration) {
	d.mu.Lock()
	d.stopped = true
	for path, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, path)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
	}
}
