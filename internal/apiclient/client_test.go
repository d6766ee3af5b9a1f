package apiclient

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func newTestClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	client, err := New(Options{
		BaseURL: srv.URL,
		Token:   "secret",
		Timeout: 5 * time.Second,
		Formats: []string{"jpeg", "png"},
		Logger:  zaptest.NewLogger(t),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Options{}); !errors.Is(err, ErrNoBaseURL) {
		t.Fatalf("New = %v, want ErrNoBaseURL", err)
	}
	if _, err := New(Options{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected invalid URL error")
	}
}

func TestConvertSuccess(t *testing.T) {
	var got ConvertRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/v2/convert" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer secret" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Server-Timing", "upload;dur=200, convert;dur=1300")
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"fileId": "swift-convert-1",
			"filename": "photo.jpeg",
			"downloadUrl": "/files/photo.jpeg",
			"previewUrl": "/preview/photo.jpeg",
			"data": "`+base64.StdEncoding.EncodeToString([]byte("jpegbytes"))+`",
			"metadata": {"type": "image/jpeg", "size": 9}
		}`)
	}))
	defer srv.Close()

	outcome, err := newTestClient(t, srv).Convert(context.Background(), ConvertRequest{
		FileID:  "swift-convert-1",
		Format:  "jpeg",
		Quality: 80,
	})
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}

	if got.FileID != "swift-convert-1" || got.Format != "jpeg" || got.Quality != 80 {
		t.Errorf("request body = %+v", got)
	}
	if outcome.DownloadURL != "/files/photo.jpeg" || outcome.Filename != "photo.jpeg" {
		t.Errorf("outcome = %+v", outcome)
	}
	if string(outcome.Data) != "jpegbytes" {
		t.Errorf("Data = %q", outcome.Data)
	}
	if outcome.Elapsed != 1500*time.Millisecond {
		t.Errorf("Elapsed = %v, want 1.5s", outcome.Elapsed)
	}
	if outcome.Metadata.Size != 9 || outcome.Metadata.Type != "image/jpeg" {
		t.Errorf("Metadata = %+v", outcome.Metadata)
	}
}

func TestConvertValidatesBeforeSending(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	cases := []struct {
		name string
		req  ConvertRequest
	}{
		{"missing id", ConvertRequest{Format: "jpeg", Quality: 80}},
		{"bad format", ConvertRequest{FileID: "a", Format: "bmp", Quality: 80}},
		{"quality zero", ConvertRequest{FileID: "a", Format: "jpeg", Quality: 0}},
		{"quality too high", ConvertRequest{FileID: "a", Format: "jpeg", Quality: 150}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := client.Convert(context.Background(), tc.req)
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("Convert = %v, want ValidationError", err)
			}
		})
	}
	if n := atomic.LoadInt32(&calls); n != 0 {
		t.Errorf("server called %d times", n)
	}
}

func TestConvertErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{http.StatusBadRequest, func(err error) bool { var e *ValidationError; return errors.As(err, &e) }},
		{http.StatusRequestEntityTooLarge, func(err error) bool { var e *ValidationError; return errors.As(err, &e) }},
		{http.StatusTooManyRequests, func(err error) bool {
			var e *RateLimitError
			return errors.As(err, &e) && e.RetryAfter == 30
		}},
		{http.StatusServiceUnavailable, func(err error) bool { var e *ServiceUnavailableError; return errors.As(err, &e) }},
		{http.StatusInternalServerError, func(err error) bool {
			var e *APIError
			return errors.As(err, &e) && e.StatusCode == 500 && e.ErrorCode == "ENGINE"
		}},
	}

	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Retry-After", "30")
				w.WriteHeader(tc.status)
				_, _ = io.WriteString(w, `{"message":"boom","error_code":"ENGINE"}`)
			}))
			defer srv.Close()

			_, err := newTestClient(t, srv).Convert(context.Background(), ConvertRequest{FileID: "a", Format: "png", Quality: 100})
			if !tc.check(err) {
				t.Fatalf("unexpected error %T: %v", err, err)
			}
		})
	}
}

func TestConvertErrorFlagInBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"error": true, "errorMsg": "unsupported HEIC variant"}`)
	}))
	defer srv.Close()

	_, err := newTestClient(t, srv).Convert(context.Background(), ConvertRequest{FileID: "a", Format: "png", Quality: 50})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "unsupported HEIC variant" {
		t.Fatalf("Convert = %v", err)
	}
}

func TestConvertTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	client := newTestClient(t, srv)
	srv.Close()

	_, err := client.Convert(context.Background(), ConvertRequest{FileID: "a", Format: "png", Quality: 50})
	var terr *TransportError
	if !errors.As(err, &terr) {
		t.Fatalf("Convert = %v, want TransportError", err)
	}
}

func TestConvertTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	client, err := New(Options{BaseURL: srv.URL, Timeout: 50 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	_, err = client.Convert(context.Background(), ConvertRequest{FileID: "a", Format: "png", Quality: 50})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Convert = %v, want deadline exceeded", err)
	}
}

func TestUploadSendsFileIDHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/uploads" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if id := r.Header.Get("X-File-ID"); id != "swift-convert-7" {
			t.Errorf("X-File-ID = %q", id)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if header.Filename != "cat.heic" || string(body) != "heicdata" {
			t.Errorf("got %s %q", header.Filename, body)
		}
		if r.FormValue("fileId") != "swift-convert-7" {
			t.Errorf("fileId field = %q", r.FormValue("fileId"))
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	err := newTestClient(t, srv).Upload(context.Background(), "swift-convert-7", "cat.heic", strings.NewReader("heicdata"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
}

// gatedReader blocks after its prefix until gate is closed.
type gatedReader struct {
	prefix io.Reader
	gate   <-chan struct{}
	rest   io.Reader
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if n, err := g.prefix.Read(p); n > 0 || err != io.EOF {
		return n, err
	}
	<-g.gate
	return g.rest.Read(p)
}

func TestUploadStreamsBody(t *testing.T) {
	gate := make(chan struct{})
	var once sync.Once
	open := func() { once.Do(func() { close(gate) }) }
	defer open()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The request arrived while the file was still being read.
		open()
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("FormFile: %v", err)
			return
		}
		defer file.Close()
		if body, _ := io.ReadAll(file); string(body) != "headtail" {
			t.Errorf("body = %q", body)
		}
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	content := &gatedReader{prefix: strings.NewReader("head"), gate: gate, rest: strings.NewReader("tail")}
	client := newTestClient(t, srv)
	done := make(chan error, 1)
	go func() {
		done <- client.Upload(context.Background(), "swift-convert-8", "big.heic", content)
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Upload: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("upload waited for the whole file before sending")
	}
}

func TestOpenEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/events" || r.URL.Query().Get("fileId") != "abc" {
			t.Errorf("unexpected request %s", r.URL)
		}
		if r.Header.Get("Accept") != "text/event-stream" {
			t.Errorf("Accept = %q", r.Header.Get("Accept"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, "data: 50\n\n")
	}))
	defer srv.Close()

	body, err := newTestClient(t, srv).OpenEvents(context.Background(), "abc")
	if err != nil {
		t.Fatalf("OpenEvents: %v", err)
	}
	defer body.Close()
	data, _ := io.ReadAll(body)
	if string(data) != "data: 50\n\n" {
		t.Errorf("body = %q", data)
	}
}

func TestOpenEventsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := newTestClient(t, srv).OpenEvents(context.Background(), "abc")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusNotFound {
		t.Fatalf("OpenEvents = %v", err)
	}
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/files/ok.png" {
			_, _ = io.WriteString(w, "pngbytes")
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	body, err := client.Download(context.Background(), "/files/ok.png")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	data, _ := io.ReadAll(body)
	body.Close()
	if string(data) != "pngbytes" {
		t.Errorf("body = %q", data)
	}

	if _, err := client.Download(context.Background(), srv.URL+"/files/missing.png"); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := client.Download(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestDownloadRejectsLocalURLs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_rsa")
	if err := os.WriteFile(path, []byte("secret"), 0o600); err != nil {
		t.Fatal(err)
	}
	client, err := New(Options{BaseURL: "http://example.invalid"})
	if err != nil {
		t.Fatal(err)
	}

	for _, raw := range []string{"file://" + filepath.ToSlash(path), "FILE:///etc/passwd", "ftp://example.com/a.jpg"} {
		body, err := client.Download(context.Background(), raw)
		if err == nil {
			body.Close()
			t.Fatalf("Download(%q) succeeded", raw)
		}
		var verr *ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("Download(%q) err = %T %v, want *ValidationError", raw, err, err)
		}
	}
}

func TestJoinWaitlist(t *testing.T) {
	var got WaitlistEntry
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/waitlist" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()
	client := newTestClient(t, srv)

	entry := WaitlistEntry{FeatureID: "batch-api", Name: "Ada", Email: "ada@example.com", IsEarlyAdopter: true}
	if err := client.JoinWaitlist(context.Background(), entry); err != nil {
		t.Fatalf("JoinWaitlist: %v", err)
	}
	if got != entry {
		t.Errorf("server got %+v", got)
	}

	for _, email := range []string{"", "not-an-email", strings.Repeat("a", 300) + "@example.com"} {
		entry.Email = email
		var verr *ValidationError
		if err := client.JoinWaitlist(context.Background(), entry); !errors.As(err, &verr) {
			t.Errorf("email %q: err = %v, want ValidationError", email, err)
		}
	}
}
