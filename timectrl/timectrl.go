package timectrl

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrBankRunning indicates an operation that is only legal before Start.
	ErrBankRunning = errors.New("timer bank already running")
	// ErrBankStopped indicates the bank was already stopped and cannot be reused.
	ErrBankStopped = errors.New("timer bank stopped")
)

// Event is a timer-fired notification. ID is the opaque identifier the timer
// was armed with; consumers dispatch on it. Time is the tick's wall-clock
// instant.
type Event struct {
	ID   int
	Time time.Time
}

// Bank drives a set of independent periodic timers and funnels every firing
// into a single event stream. The single stream is the serialization point:
// a consumer ranging over Events processes notifications strictly one at a
// time, however the underlying timers interleave.
//
// A Bank is single-use: Arm the timers, Start once, Stop once. Restarting a
// simulation builds a fresh Bank, which re-arms cleanly.
type Bank struct {
	mu      sync.Mutex
	periods map[int]time.Duration
	events  chan Event
	stop    chan struct{}
	wg      sync.WaitGroup
	started bool
	stopped bool
}

// NewBank constructs a bank whose event stream buffers up to buffer
// notifications before timer goroutines block.
func NewBank(buffer int) *Bank {
	if buffer < 0 {
		buffer = 0
	}
	return &Bank{
		periods: make(map[int]time.Duration),
		events:  make(chan Event, buffer),
		stop:    make(chan struct{}),
	}
}

// Arm registers a periodic timer under the given identifier. Legal only
// before Start; identifiers must be unique within the bank.
func (b *Bank) Arm(id int, period time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrBankRunning
	}
	if b.stopped {
		return ErrBankStopped
	}
	if period <= 0 {
		return fmt.Errorf("timer %d: period must be positive, got %v", id, period)
	}
	if _, ok := b.periods[id]; ok {
		return fmt.Errorf("timer %d already armed", id)
	}
	b.periods[id] = period
	return nil
}

// Events returns the stream of timer firings. The channel is closed after
// Stop, once every timer goroutine has exited.
func (b *Bank) Events() <-chan Event {
	return b.events
}

// Start launches one ticker goroutine per armed timer.
func (b *Bank) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return ErrBankRunning
	}
	if b.stopped {
		return ErrBankStopped
	}
	b.started = true
	for id, period := range b.periods {
		b.wg.Add(1)
		go b.run(id, period)
	}
	return nil
}

func (b *Bank) run(id int, period time.Duration) {
	defer b.wg.Done()
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case t := <-ticker.C:
			select {
			case b.events <- Event{ID: id, Time: t}:
			case <-b.stop:
				return
			}
		}
	}
}

// Stop disarms every timer and closes the event stream once all ticker
// goroutines have exited. Events already buffered in the stream may still be
// delivered before the consumer observes the close; consumers that must not
// act on them check their own run state. Stop is idempotent.
func (b *Bank) Stop() {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return
	}
	b.stopped = true
	started := b.started
	b.mu.Unlock()

	close(b.stop)
	if started {
		b.wg.Wait()
	}
	close(b.events)
}
