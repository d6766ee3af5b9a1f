// Package results keeps the ordered list of conversion results shown to
// the user, keyed by service file id.
package results

import "sync"

type Status string

const (
	StatusPending    Status = "pending"
	StatusUploading  Status = "uploading"
	StatusConverting Status = "converting"
	StatusDone       Status = "done"
	StatusFailed     Status = "failed"
)

// ImageResult is one row of the results view.
type ImageResult struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Size        string            `json:"size"`
	SourceURL   string            `json:"sourceUrl,omitempty"`
	DownloadURL string            `json:"downloadUrl,omitempty"`
	// LocalPath is set when the converted file was written on this machine.
	LocalPath   string            `json:"localPath,omitempty"`
	Type        string            `json:"type"`
	Progress    int               `json:"progress"`
	Information map[string]string `json:"information,omitempty"`
	Current     bool              `json:"current"`
	Status      Status            `json:"status"`
	Error       string            `json:"error,omitempty"`
}

func (r ImageResult) clone() ImageResult {
	if r.Information != nil {
		info := make(map[string]string, len(r.Information))
		for k, v := range r.Information {
			info[k] = v
		}
		r.Information = info
	}
	return r
}

// Collection is the single owner of result state. Safe for concurrent use.
type Collection struct {
	mu    sync.RWMutex
	items []ImageResult
	index map[string]int
}

func NewCollection() *Collection {
	return &Collection{index: make(map[string]int)}
}

// Upsert replaces the entry with the same id in place, or appends it.
func (c *Collection) Upsert(r ImageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	r = r.clone()
	if i, ok := c.index[r.ID]; ok {
		r.Current = c.items[i].Current
		c.items[i] = r
		return
	}
	c.index[r.ID] = len(c.items)
	c.items = append(c.items, r)
}

// Update applies fn to the entry with id. It reports false when no such
// entry exists.
func (c *Collection) Update(id string, fn func(*ImageResult)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	r := c.items[i].clone()
	fn(&r)
	r.ID = id
	c.items[i] = r
	return true
}

// SetProgress raises the displayed progress of id. Lower values are
// ignored, so a late or duplicated event never moves a bar backwards.
func (c *Collection) SetProgress(id string, p int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if !ok {
		return false
	}
	if p > c.items[i].Progress {
		c.items[i].Progress = p
	}
	return true
}

// Remove deletes id and reports whether the collection is now empty.
func (c *Collection) Remove(id string) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.index[id]
	if ok {
		c.items = append(c.items[:i], c.items[i+1:]...)
		c.reindex()
	}
	return len(c.items) == 0
}

// SelectCurrent marks id as the current entry. An empty id clears the mark.
func (c *Collection) SelectCurrent(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.index[id]; id != "" && !ok {
		return false
	}
	for i := range c.items {
		c.items[i].Current = c.items[i].ID == id
	}
	return true
}

// Current returns the entry marked current, if any.
func (c *Collection) Current() (ImageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.items {
		if r.Current {
			return r.clone(), true
		}
	}
	return ImageResult{}, false
}

func (c *Collection) Get(id string) (ImageResult, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.index[id]
	if !ok {
		return ImageResult{}, false
	}
	return c.items[i].clone(), true
}

func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Snapshot returns a copy of all entries in insertion order.
func (c *Collection) Snapshot() []ImageResult {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ImageResult, len(c.items))
	for i, r := range c.items {
		out[i] = r.clone()
	}
	return out
}

func (c *Collection) Reset() {
	c.mu.Lock()
	c.items = nil
	c.index = make(map[string]int)
	c.mu.Unlock()
}

// Load replaces the contents with rs.
func (c *Collection) Load(rs []ImageResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make([]ImageResult, 0, len(rs))
	for _, r := range rs {
		c.items = append(c.items, r.clone())
	}
	c.reindex()
}

func (c *Collection) reindex() {
	c.index = make(map[string]int, len(c.items))
	for i, r := range c.items {
		c.index[r.ID] = i
	}
}
