// Package export bundles converted results into an archive, or saves them
// one by one, and hands the bytes to a storage backend.
package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swiftconvert/internal/results"
)

// ArchivePrefix starts every archive name.
const ArchivePrefix = "swiftconvert-"

var ErrNothingToExport = errors.New("no converted results to export")

// Fetcher downloads the converted bytes behind a result URL.
type Fetcher interface {
	Download(ctx context.Context, rawURL string) (io.ReadCloser, error)
}

// Saver stores one named blob and returns where it ended up.
type Saver interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}

type Exporter struct {
	fetcher     Fetcher
	saver       Saver
	logger      *zap.Logger
	concurrency int
	now         func() time.Time
}

func New(fetcher Fetcher, saver Saver, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Exporter{
		fetcher:     fetcher,
		saver:       saver,
		logger:      logger,
		concurrency: 4,
		now:         time.Now,
	}
}

// ArchiveName returns the timestamped archive file name for t.
func ArchiveName(t time.Time) string {
	return ArchivePrefix + t.Format("20060102-150405") + ".zip"
}

// Completed returns the results that finished converting.
func Completed(rs []results.ImageResult) []results.ImageResult {
	var out []results.ImageResult
	for _, r := range rs {
		if r.Status == results.StatusDone {
			out = append(out, r)
		}
	}
	return out
}

// ExportAll downloads every result and saves them as one zip archive. If any
// download fails nothing is saved.
func (e *Exporter) ExportAll(ctx context.Context, rs []results.ImageResult) (string, error) {
	if len(rs) == 0 {
		return "", ErrNothingToExport
	}

	blobs := make([][]byte, len(rs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, r := range rs {
		g.Go(func() error {
			data, err := e.fetch(gctx, r)
			if err != nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			blobs[i] = data
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("export aborted", zap.Error(err))
		return "", fmt.Errorf("export aborted: %w", err)
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	names := newNameSet()
	for i, r := range rs {
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     names.claim(r.Name),
			Method:   zip.Deflate,
			Modified: e.now(),
		})
		if err != nil {
			return "", fmt.Errorf("add %s to archive: %w", r.Name, err)
		}
		if _, err := w.Write(blobs[i]); err != nil {
			return "", fmt.Errorf("add %s to archive: %w", r.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("finish archive: %w", err)
	}

	location, err := e.saver.Save(ctx, ArchiveName(e.now()), &buf)
	if err != nil {
		return "", fmt.Errorf("save archive: %w", err)
	}
	e.logger.Info("archive exported", zap.Int("files", len(rs)), zap.String("location", location))
	return location, nil
}

// Saved reports the outcome of one per-file save.
type Saved struct {
	ID       string
	Name     string
	Location string
	Err      error
}

// SaveEach downloads and saves every result individually. A failure only
// affects its own entry.
func (e *Exporter) SaveEach(ctx context.Context, rs []results.ImageResult) []Saved {
	out := make([]Saved, len(rs))
	names := newNameSet()
	for i, r := range rs {
		out[i] = Saved{ID: r.ID, Name: names.claim(r.Name)}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, r := range rs {
		g.Go(func() error {
			data, err := e.fetch(gctx, r)
			if err == nil {
				out[i].Location, err = e.saver.Save(gctx, out[i].Name, bytes.NewReader(data))
			}
			if err != nil {
				e.logger.Warn("download failed", zap.String("file_id", r.ID), zap.Error(err))
				out[i].Err = err
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// fetch reads files converted on this machine from their local path and
// everything else through the fetcher.
func (e *Exporter) fetch(ctx context.Context, r results.ImageResult) ([]byte, error) {
	if r.LocalPath != "" {
		return os.ReadFile(r.LocalPath)
	}
	if r.DownloadURL == "" {
		return nil, errors.New("no download URL")
	}
	body, err := e.fetcher.Download(ctx, r.DownloadURL)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return io.ReadAll(body)
}

// nameSet hands out unique file names, suffixing repeats with " (n)".
type nameSet map[string]bool

func newNameSet() nameSet { return nameSet{} }

func (s nameSet) claim(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "" || name == "." || name == "/" {
		name = "image"
	}
	candidate := name
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; s[candidate]; n++ {
		candidate = fmt.Sprintf("%s (%d)%s", stem, n, ext)
	}
	s[candidate] = true
	return candidate
}
