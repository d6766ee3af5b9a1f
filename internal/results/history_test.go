package results

import (
	"testing"

	"go.uber.org/zap/zaptest"

	"swiftconvert/internal/store"
)

func openHistory(t *testing.T) (*History, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return NewHistory(st, zaptest.NewLogger(t)), st
}

func TestHistoryRoundTrip(t *testing.T) {
	h, _ := openHistory(t)

	batch := []ImageResult{
		{ID: "a", Name: "a.jpeg", Progress: 100, Status: StatusDone, DownloadURL: "/files/a.jpeg", Current: true,
			Information: map[string]string{"Image quality": "80"}},
		{ID: "b", Name: "b.heic", Status: StatusFailed, Error: "boom"},
	}
	if err := h.Save(batch); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := h.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ids(got) != "a,b" {
		t.Fatalf("ids = %s", ids(got))
	}
	if got[0].Current {
		t.Error("current marker was persisted")
	}
	if got[0].Information["Image quality"] != "80" || got[1].Error != "boom" {
		t.Errorf("got = %+v", got)
	}
}

func TestHistorySaveReplacesPreviousBatch(t *testing.T) {
	h, _ := openHistory(t)

	if err := h.Save([]ImageResult{{ID: "a"}, {ID: "b"}, {ID: "c"}}); err != nil {
		t.Fatal(err)
	}
	if err := h.Save([]ImageResult{{ID: "z"}}); err != nil {
		t.Fatal(err)
	}
	got, _ := h.Load()
	if ids(got) != "z" {
		t.Fatalf("ids = %s, want z", ids(got))
	}

	if err := h.Clear(); err != nil {
		t.Fatal(err)
	}
	c, err := h.Restore()
	if err != nil {
		t.Fatal(err)
	}
	if c.Len() != 0 {
		t.Fatalf("Len after Clear = %d", c.Len())
	}
}

func TestHistorySkipsCorruptRows(t *testing.T) {
	h, st := openHistory(t)
	if err := h.Save([]ImageResult{{ID: "a"}}); err != nil {
		t.Fatal(err)
	}
	if err := st.PutAll([]store.Entry{{Key: historyPrefix + "999999", Value: []byte("{not json")}}); err != nil {
		t.Fatal(err)
	}

	got, err := h.Load()
	if err != nil {
		t.Fatal(err)
	}
	if ids(got) != "a" {
		t.Fatalf("ids = %s", ids(got))
	}
}
