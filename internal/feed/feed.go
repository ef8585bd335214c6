// Package feed fans completed frames out to the in-process consumers of the
// daemon: the frame store, the HTTP API and the debug tail.
package feed

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/reedgrid/internal/frame"
	"github.com/banshee-data/reedgrid/internal/monitoring"
	"github.com/banshee-data/reedgrid/internal/timeutil"
)

// subscriberBuffer is how many records a slow subscriber may fall behind
// before records are dropped for it.
const subscriberBuffer = 16

// Record is a frame stamped with an identity and capture time.
type Record struct {
	ID         uuid.UUID   `json:"id"`
	CapturedAt time.Time   `json:"captured_at"`
	Frame      frame.Frame `json:"-"`
}

// FrameSource is satisfied by *frame.Assembler.
type FrameSource interface {
	NextFrame(ctx context.Context) (frame.Frame, error)
}

// Feed publishes records to any number of subscribers. Publishing never
// blocks on a subscriber.
type Feed struct {
	clock timeutil.Clock

	mu          sync.Mutex
	subscribers map[string]chan Record
	latest      *Record
	published   int64
	dropped     int64
	closing     bool
}

// New returns an empty Feed. A nil clock uses the wall clock.
func New(clock timeutil.Clock) *Feed {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Feed{
		clock:       clock,
		subscribers: make(map[string]chan Record),
	}
}

// Subscribe creates a new channel for receiving records. The ID is used to
// unsubscribe. Subscribing to a closed feed returns a closed channel.
func (f *Feed) Subscribe() (string, <-chan Record) {
	id := uuid.NewString()
	ch := make(chan Record, subscriberBuffer)

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closing {
		close(ch)
		return id, ch
	}
	f.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (f *Feed) Unsubscribe(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.subscribers[id]; ok {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Publish stamps fr and delivers it to every subscriber with room for it.
func (f *Feed) Publish(fr frame.Frame) Record {
	rec := Record{
		ID:         uuid.New(),
		CapturedAt: f.clock.Now(),
		Frame:      fr,
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closing {
		return rec
	}
	f.latest = &rec
	f.published++
	for _, ch := range f.subscribers {
		select {
		case ch <- rec:
		default:
			// skip full subscribers so one slow consumer cannot stall the rest
			f.dropped++
		}
	}
	return rec
}

// Latest returns the most recently published record.
func (f *Feed) Latest() (Record, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.latest == nil {
		return Record{}, false
	}
	return *f.latest, true
}

// Counts returns how many records were published and how many deliveries
// were dropped because a subscriber was full.
func (f *Feed) Counts() (published, dropped int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.published, f.dropped
}

// Subscribers returns the number of live subscriptions.
func (f *Feed) Subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribers)
}

// Close closes every subscriber channel. Later publishes are ignored.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closing {
		return
	}
	f.closing = true
	for id, ch := range f.subscribers {
		close(ch)
		delete(f.subscribers, id)
	}
}

// Run pulls frames from src and publishes them until src fails or ctx is
// done. A stream that closes because ctx was cancelled is not an error.
func (f *Feed) Run(ctx context.Context, src FrameSource) error {
	for {
		fr, err := src.NextFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, frame.ErrStreamClosed) {
				monitoring.Logf("feed: frame stream closed")
			}
			return err
		}
		rec := f.Publish(fr)
		monitoring.Logf("feed: frame %s with %d closed switches", rec.ID, fr.Count())
	}
}
