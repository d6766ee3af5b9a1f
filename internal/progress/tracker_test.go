package progress

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

// stringStreamer serves a fixed stream body per file id.
type stringStreamer map[string]string

func (s stringStreamer) OpenEvents(ctx context.Context, fileID string) (io.ReadCloser, error) {
	body, ok := s[fileID]
	if !ok {
		return nil, errors.New("no stream")
	}
	return io.NopCloser(strings.NewReader(body)), nil
}

func collect(t *testing.T, sub *Subscription) []int {
	t.Helper()
	var got []int
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return got
			}
			if ev.FileID != sub.FileID {
				t.Errorf("event for %q on subscription %q", ev.FileID, sub.FileID)
			}
			got = append(got, ev.Progress)
		case <-timeout:
			t.Fatal("timed out waiting for events")
		}
	}
}

func TestSubscribeDeliversInOrderAndStopsAtComplete(t *testing.T) {
	stream := "data: {\"fileId\":\"a\",\"progress\":10}\n\n" +
		"data: {\"fileId\":\"a\",\"progress\":45}\n\n" +
		"data: {\"fileId\":\"a\",\"progress\":45}\n\n" +
		"data: {\"fileId\":\"a\",\"progress\":100}\n\n" +
		"data: {\"fileId\":\"a\",\"progress\":20}\n\n"
	tracker := NewTracker(stringStreamer{"a": stream}, zaptest.NewLogger(t))

	sub, err := tracker.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	got := collect(t, sub)

	want := []int{10, 45, 45, 100}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err = %v", err)
	}
	if p, ok := tracker.Progress("a"); !ok || p != 100 {
		t.Errorf("Progress(a) = %d, %v", p, ok)
	}
}

func TestSubscribePayloadShapes(t *testing.T) {
	stream := ": keep-alive\n\n" +
		"data: 5\n\n" +
		"event: progress\ndata: {\"Filename\":\"cat.heic\",\"Progress\":30}\n\n" +
		"data: {\"fileId\":\"other\",\"progress\":99}\n\n" +
		"data: not json\n\n" +
		"data: {\"progress\":100}\n\n"
	tracker := NewTracker(stringStreamer{"a": stream}, zaptest.NewLogger(t))

	sub, err := tracker.Subscribe(context.Background(), "a")
	if err != nil {
		t.Fatal(err)
	}
	got := collect(t, sub)
	want := []int{5, 30, 100}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
	if _, ok := tracker.Progress("other"); ok {
		t.Error("event for another file was recorded")
	}
}

func TestSubscribeStreamEndsEarly(t *testing.T) {
	tracker := NewTracker(stringStreamer{"a": "data: 40\n\n"}, zaptest.NewLogger(t))
	sub, _ := tracker.Subscribe(context.Background(), "a")
	collect(t, sub)
	if !errors.Is(sub.Err(), ErrStreamEnded) {
		t.Fatalf("Err = %v, want ErrStreamEnded", sub.Err())
	}
	if p, _ := tracker.Progress("a"); p != 40 {
		t.Errorf("Progress = %d", p)
	}
}

func TestSubscribeOpenFailureIsIsolated(t *testing.T) {
	tracker := NewTracker(stringStreamer{"good": "data: 100\n\n"}, zaptest.NewLogger(t))

	bad, _ := tracker.Subscribe(context.Background(), "bad")
	good, _ := tracker.Subscribe(context.Background(), "good")

	collect(t, bad)
	if bad.Err() == nil {
		t.Error("expected error for missing stream")
	}
	if got := collect(t, good); len(got) != 1 || got[0] != 100 {
		t.Errorf("good events = %v", got)
	}
	if good.Err() != nil {
		t.Errorf("good Err = %v", good.Err())
	}
}

type httpStreamer struct {
	url string
}

func (h httpStreamer) OpenEvents(ctx context.Context, fileID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url+"?fileId="+fileID, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func TestCloseStopsLiveStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: 10\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	tracker := NewTracker(httpStreamer{url: srv.URL}, zaptest.NewLogger(t))
	sub, err := tracker.Subscribe(context.Background(), "live")
	if err != nil {
		t.Fatal(err)
	}

	select {
	case ev := <-sub.Events():
		if ev.Progress != 10 {
			t.Fatalf("first event = %+v", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no event received")
	}

	sub.Close()
	if _, ok := <-sub.Events(); ok {
		t.Error("events channel still open after Close")
	}
	if err := sub.Err(); err != nil {
		t.Errorf("Err after Close = %v", err)
	}
}

func TestTrackerReset(t *testing.T) {
	tracker := NewTracker(stringStreamer{"a": "data: 100\n\n"}, nil)
	sub, _ := tracker.Subscribe(context.Background(), "a")
	collect(t, sub)

	if len(tracker.Snapshot()) != 1 {
		t.Fatalf("Snapshot = %v", tracker.Snapshot())
	}
	tracker.Reset()
	if len(tracker.Snapshot()) != 0 {
		t.Fatalf("Snapshot after Reset = %v", tracker.Snapshot())
	}
}

func TestSubscribeRejectsEmptyID(t *testing.T) {
	if _, err := NewTracker(stringStreamer{}, nil).Subscribe(context.Background(), ""); err == nil {
		t.Fatal("expected error")
	}
}
