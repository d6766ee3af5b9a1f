// Package progress follows conversion progress pushed by the service over
// server-sent events, one stream per file.
package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

// Complete is the progress value that ends a subscription.
const Complete = 100

var ErrStreamEnded = errors.New("event stream ended before completion")

// Event is one progress report for a file.
type Event struct {
	FileID   string
	Progress int
}

// Streamer opens the event stream for one file id.
type Streamer interface {
	OpenEvents(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// Tracker owns the file id -> last progress map. Safe for concurrent use.
type Tracker struct {
	streamer Streamer
	logger   *zap.Logger

	mu       sync.RWMutex
	progress map[string]int
}

func NewTracker(streamer Streamer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		streamer: streamer,
		logger:   logger,
		progress: make(map[string]int),
	}
}

// Progress returns the last value received for fileID.
func (t *Tracker) Progress(fileID string) (int, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	p, ok := t.progress[fileID]
	return p, ok
}

func (t *Tracker) Snapshot() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.progress))
	for k, v := range t.progress {
		out[k] = v
	}
	return out
}

// Reset forgets every file. Open subscriptions keep running until their
// context is cancelled.
func (t *Tracker) Reset() {
	t.mu.Lock()
	t.progress = make(map[string]int)
	t.mu.Unlock()
}

func (t *Tracker) record(fileID string, p int) {
	t.mu.Lock()
	t.progress[fileID] = p
	t.mu.Unlock()
}

// Subscription delivers progress events for a single file until it sees
// Complete, the stream fails, Close is called or its context is cancelled.
type Subscription struct {
	FileID string

	events chan Event
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Subscribe starts following fileID. The stream is opened in the
// background; a failure to open surfaces through Err.
func (t *Tracker) Subscribe(ctx context.Context, fileID string) (*Subscription, error) {
	if fileID == "" {
		return nil, errors.New("subscribe: empty file id")
	}
	if t.streamer == nil {
		return nil, errors.New("subscribe: no event source configured")
	}

	ctx, cancel := context.WithCancel(ctx)
	sub := &Subscription{
		FileID: fileID,
		events: make(chan Event, 16),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go t.follow(ctx, sub)
	return sub, nil
}

// Events is closed when the subscription ends.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close stops the subscription and waits for its goroutine to exit.
func (s *Subscription) Close() {
	s.cancel()
	<-s.done
}

// Err reports why the stream ended. It is nil after completion or
// cancellation, and only meaningful once Events is closed.
func (s *Subscription) Err() error {
	<-s.done
	return s.err
}

func (t *Tracker) follow(ctx context.Context, sub *Subscription) {
	defer close(sub.done)
	defer close(sub.events)
	defer sub.cancel()

	log := t.logger.With(zap.String("file_id", sub.FileID))

	body, err := t.streamer.OpenEvents(ctx, sub.FileID)
	if err != nil {
		if ctx.Err() == nil {
			sub.err = fmt.Errorf("open event stream: %w", err)
			log.Warn("event stream unavailable", zap.Error(err))
		}
		return
	}
	defer body.Close()
	stop := context.AfterFunc(ctx, func() { body.Close() })
	defer stop()

	completed := false
	err = readEvents(body, func(data string) bool {
		id, p, ok := parsePayload(data)
		if !ok {
			log.Debug("ignoring malformed progress event", zap.String("data", data))
			return false
		}
		if id != "" && id != sub.FileID {
			log.Debug("ignoring event for another file", zap.String("event_file_id", id))
			return false
		}

		t.record(sub.FileID, p)
		select {
		case sub.events <- Event{FileID: sub.FileID, Progress: p}:
		case <-ctx.Done():
			return true
		}
		if p >= Complete {
			completed = true
			return true
		}
		return false
	})

	switch {
	case completed || ctx.Err() != nil:
	case err != nil:
		sub.err = fmt.Errorf("read event stream: %w", err)
		log.Warn("event stream failed", zap.Error(err))
	default:
		sub.err = ErrStreamEnded
	}
}
