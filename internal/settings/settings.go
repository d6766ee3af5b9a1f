// Package settings holds the user's conversion preferences: the expected
// input format, the target output format and the image quality.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"go.uber.org/zap"

	"swiftconvert/internal/store"
)

// Fixed keys the preferences are persisted under.
const (
	KeyFileInput    = "fileInput"
	KeyFileOutput   = "fileOutput"
	KeyImageQuality = "imageQuality"
)

const (
	MinQuality  = 10
	MaxQuality  = 100
	QualityStep = 10
)

// Defaults applies when nothing has been saved yet.
var Defaults = Settings{FileInputID: "heic", FileOutputID: "jpeg", ImageQuality: 100}

type Settings struct {
	FileInputID  string `json:"fileInputId"`
	FileOutputID string `json:"fileOutputId"`
	ImageQuality int    `json:"imageQuality"`
}

// QualityError reports an image quality outside the allowed steps.
type QualityError struct {
	Quality int
}

func (e *QualityError) Error() string {
	return fmt.Sprintf("image quality %d must be a multiple of %d between %d and %d", e.Quality, QualityStep, MinQuality, MaxQuality)
}

// FormatError reports an output format the service does not produce.
type FormatError struct {
	Format    string
	Supported []string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("unsupported output format %q (supported: %v)", e.Format, e.Supported)
}

// ValidateQuality returns a *QualityError unless q is an allowed step.
func ValidateQuality(q int) error {
	if q < MinQuality || q > MaxQuality || q%QualityStep != 0 {
		return &QualityError{Quality: q}
	}
	return nil
}

// Backend is the key/value persistence the store writes through.
type Backend interface {
	Get(key string) ([]byte, error)
	PutAll(entries []store.Entry) error
}

type Store struct {
	backend Backend
	outputs []string
	logger  *zap.Logger

	mu        sync.Mutex
	current   *Settings
	observers []observer
	nextID    int
}

type observer struct {
	id int
	fn func(Settings)
}

// NewStore creates a store persisting through backend. outputs lists the
// output formats Save accepts.
func NewStore(backend Backend, outputs []string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, outputs: outputs, logger: logger}
}

// Load reads the persisted settings. Missing or unreadable values fall back
// to Defaults field by field; Load never fails.
func (s *Store) Load() Settings {
	out := Defaults

	if v, ok := s.read(KeyFileInput); ok && v != "" {
		out.FileInputID = v
	}
	if v, ok := s.read(KeyFileOutput); ok && v != "" {
		out.FileOutputID = v
	}
	if v, ok := s.read(KeyImageQuality); ok {
		if q, err := strconv.Atoi(v); err == nil && ValidateQuality(q) == nil {
			out.ImageQuality = q
		} else {
			s.logger.Warn("ignoring stored image quality", zap.String("value", v))
		}
	}

	s.mu.Lock()
	s.current = &out
	s.mu.Unlock()
	return out
}

// Current returns the in-memory settings, loading them on first use.
func (s *Store) Current() Settings {
	s.mu.Lock()
	cur := s.current
	s.mu.Unlock()
	if cur != nil {
		return *cur
	}
	return s.Load()
}

// Save validates next, overwrites every persisted field and notifies
// observers synchronously in subscription order.
func (s *Store) Save(next Settings) error {
	if err := ValidateQuality(next.ImageQuality); err != nil {
		return err
	}
	if !s.supports(next.FileOutputID) {
		return &FormatError{Format: next.FileOutputID, Supported: s.outputs}
	}
	if next.FileInputID == "" {
		next.FileInputID = Defaults.FileInputID
	}

	err := s.backend.PutAll([]store.Entry{
		{Key: KeyFileInput, Value: []byte(next.FileInputID)},
		{Key: KeyFileOutput, Value: []byte(next.FileOutputID)},
		{Key: KeyImageQuality, Value: []byte(strconv.Itoa(next.ImageQuality))},
	})
	if err != nil {
		return fmt.Errorf("persist settings: %w", err)
	}

	s.mu.Lock()
	s.current = &next
	fns := make([]func(Settings), 0, len(s.observers))
	for _, o := range s.observers {
		fns = append(fns, o.fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
	s.logger.Info("settings saved",
		zap.String("output", next.FileOutputID),
		zap.Int("quality", next.ImageQuality),
	)
	return nil
}

// Subscribe registers fn to run after every successful Save. The returned
// function removes it.
func (s *Store) Subscribe(fn func(Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	s.observers = append(s.observers, observer{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, o := range s.observers {
			if o.id == id {
				s.observers = append(s.observers[:i], s.observers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) supports(format string) bool {
	for _, f := range s.outputs {
		if f == format {
			return true
		}
	}
	return false
}

func (s *Store) read(key string) (string, bool) {
	data, err := s.backend.Get(key)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("failed to read setting", zap.String("key", key), zap.Error(err))
		}
		return "", false
	}
	return string(data), true
}
