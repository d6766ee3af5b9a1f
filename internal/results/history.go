package results

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"swiftconvert/internal/store"
)

const historyPrefix = "results/"

// HistoryBackend is the slice of the state store the history needs.
type HistoryBackend interface {
	Scan(prefix string) ([]store.Entry, error)
	ReplacePrefix(prefix string, entries []store.Entry) error
}

// History persists the last batch so later commands can list, inspect and
// export it.
type History struct {
	backend HistoryBackend
	logger  *zap.Logger
}

func NewHistory(backend HistoryBackend, logger *zap.Logger) *History {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &History{backend: backend, logger: logger}
}

// Save replaces the stored batch with rs, keeping their order.
func (h *History) Save(rs []ImageResult) error {
	entries := make([]store.Entry, 0, len(rs))
	for i, r := range rs {
		r.Current = false
		data, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode result %s: %w", r.ID, err)
		}
		entries = append(entries, store.Entry{Key: fmt.Sprintf("%s%06d", historyPrefix, i), Value: data})
	}
	if err := h.backend.ReplacePrefix(historyPrefix, entries); err != nil {
		return fmt.Errorf("save results: %w", err)
	}
	return nil
}

// Load returns the stored batch. Undecodable rows are skipped.
func (h *History) Load() ([]ImageResult, error) {
	entries, err := h.backend.Scan(historyPrefix)
	if err != nil {
		return nil, fmt.Errorf("load results: %w", err)
	}

	out := make([]ImageResult, 0, len(entries))
	for _, e := range entries {
		var r ImageResult
		if err := json.Unmarshal(e.Value, &r); err != nil {
			h.logger.Warn("skipping corrupt result row", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Clear drops the stored batch.
func (h *History) Clear() error {
	return h.Save(nil)
}

// Restore loads the stored batch into a fresh collection.
func (h *History) Restore() (*Collection, error) {
	rs, err := h.Load()
	if err != nil {
		return nil, err
	}
	c := NewCollection()
	c.Load(rs)
	return c, nil
}
