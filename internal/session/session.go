// Package session drives one conversion batch: validation, uploads,
// progress subscriptions, conversion calls and reconciliation of every
// event into the results collection.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"swiftconvert/internal/apiclient"
	"swiftconvert/internal/metadata"
	"swiftconvert/internal/progress"
	"swiftconvert/internal/results"
	"swiftconvert/internal/settings"
	"swiftconvert/internal/upload"
	"swiftconvert/pkg/imgutil"
)

// Information map keys.
const (
	InfoFilename     = "Filename"
	InfoType         = "Type"
	InfoElapsed      = "Elapsed time"
	InfoCreated      = "Created"
	InfoModified     = "Last modified"
	InfoImageQuality = "Image quality"
	InfoSource       = "Source"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	ErrNoFiles   = errors.New("no files left to convert")
	ErrCancelled = errors.New("conversion cancelled")
)

type Converter interface {
	Convert(ctx context.Context, req apiclient.ConvertRequest) (*apiclient.ConversionOutcome, error)
}

type ProgressSource interface {
	Subscribe(ctx context.Context, fileID string) (*progress.Subscription, error)
	Reset()
}

type Uploader interface {
	Upload(ctx context.Context, files []upload.File, hooks upload.Hooks)
}

type SettingsSource interface {
	Current() settings.Settings
	Subscribe(fn func(settings.Settings)) func()
}

type Deps struct {
	Converter Converter
	Progress  ProgressSource
	Uploader  Uploader
	Settings  SettingsSource
	Results   *results.Collection
}

type Options struct {
	Restrictions upload.Restrictions
	// OutputDir receives converted files the service returns inline.
	OutputDir string
	Logger    *zap.Logger
}

type UpdateKind int

const (
	UpdateAdded UpdateKind = iota
	UpdateProgress
	UpdateConverted
	UpdateFailed
	UpdateNotice
)

// Update is sent to the UI after every change. Results is a snapshot taken
// right after the change was applied.
type Update struct {
	Kind    UpdateKind
	FileID  string
	Notice  string
	Results []results.ImageResult
}

type Summary struct {
	Total     int
	Converted int
	Failed    int
	Rejected  int
	Elapsed   time.Duration
}

type Session struct {
	converter  Converter
	progress   ProgressSource
	uploader   Uploader
	collection *results.Collection
	opts       Options
	logger     *zap.Logger

	unsubscribe func()
	prepare     func([]string, upload.Restrictions, imgutil.Kind) ([]upload.File, []upload.Notice)

	emitMu sync.Mutex
	mu     sync.Mutex
	params settings.Settings
	gen    int
	cancel context.CancelFunc
}

func New(deps Deps, opts Options) *Session {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	collection := deps.Results
	if collection == nil {
		collection = results.NewCollection()
	}
	if opts.OutputDir == "" {
		opts.OutputDir = os.TempDir()
	}

	s := &Session{
		converter:  deps.Converter,
		progress:   deps.Progress,
		uploader:   deps.Uploader,
		collection: collection,
		opts:       opts,
		logger:     logger,
		params:     settings.Defaults,
		prepare:    upload.Prepare,
	}
	if deps.Settings != nil {
		s.params = deps.Settings.Current()
		s.unsubscribe = deps.Settings.Subscribe(func(next settings.Settings) {
			s.mu.Lock()
			s.params = next
			s.mu.Unlock()
			logger.Debug("conversion settings changed",
				zap.String("output", next.FileOutputID),
				zap.Int("quality", next.ImageQuality),
			)
		})
	}
	return s
}

// Close detaches the session from the settings store.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

// Settings returns the parameters the next batch will use.
func (s *Session) Settings() settings.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params
}

func (s *Session) Results() *results.Collection {
	return s.collection
}

// Reset cancels every upload, subscription and conversion of the running
// batch, then clears the results and the progress map.
func (s *Session) Reset() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.gen++
	s.collection.Reset()
	if s.progress != nil {
		s.progress.Reset()
	}
	s.mu.Unlock()
	s.logger.Info("session reset")
}

// Run converts the files at paths with the current settings. Updates are
// sent on updates, which may be nil. A failed file never stops the others;
// Run only returns an error when nothing could be attempted or the batch was
// cancelled.
func (s *Session) Run(ctx context.Context, paths []string, updates chan<- Update) (Summary, error) {
	started := time.Now()
	params := s.Settings()

	batchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.cancel = cancel
	gen := s.gen
	s.mu.Unlock()

	files, notices := s.prepare(paths, s.opts.Restrictions, imgutil.ParseKind(params.FileOutputID))
	for _, n := range notices {
		s.logger.Info("file rejected", zap.String("path", n.Path), zap.String("reason", n.Reason))
	}

	summary := Summary{Total: len(files), Rejected: len(notices)}
	if s.resetSince(gen) || batchCtx.Err() != nil {
		s.release(gen)
		return summary, ErrCancelled
	}
	if len(files) == 0 {
		s.release(gen)
		for _, n := range notices {
			send(updates, Update{Kind: UpdateNotice, Notice: n.String()})
		}
		return summary, ErrNoFiles
	}

	b := &batch{
		session: s,
		gen:     gen,
		params:  params,
		updates: updates,
		logger:  s.logger.With(zap.String("output", params.FileOutputID), zap.Int("quality", params.ImageQuality)),
	}
	for _, n := range notices {
		b.emit(Update{Kind: UpdateNotice, Notice: n.String()})
	}

	s.uploader.Upload(batchCtx, files, b)
	b.wg.Wait()

	for _, f := range files {
		r, ok := s.collection.Get(f.ID)
		switch {
		case ok && r.Status == results.StatusDone:
			summary.Converted++
		default:
			summary.Failed++
		}
	}
	summary.Elapsed = time.Since(started)

	if s.release(gen) || batchCtx.Err() != nil {
		return summary, ErrCancelled
	}
	s.logger.Info("batch finished",
		zap.Int("converted", summary.Converted),
		zap.Int("failed", summary.Failed),
		zap.Int("rejected", summary.Rejected),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

func (s *Session) resetSince(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen != gen
}

// release detaches the batch cancel func and reports whether the session
// was reset since generation gen started.
func (s *Session) release(gen int) (reset bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return true
	}
	s.cancel = nil
	return false
}

// batch implements upload.Hooks for one Run.
type batch struct {
	session *Session
	gen     int
	params  settings.Settings
	updates chan<- Update
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// commit applies fn to the collection unless the session was reset after
// the batch started, then publishes u with a snapshot taken under the same
// lock. Updates leave in the order their snapshots were taken.
func (b *batch) commit(u Update, fn func(c *results.Collection)) bool {
	s := b.session
	s.emitMu.Lock()
	defer s.emitMu.Unlock()

	s.mu.Lock()
	if s.gen != b.gen {
		s.mu.Unlock()
		return false
	}
	fn(s.collection)
	u.Results = s.collection.Snapshot()
	s.mu.Unlock()

	b.emit(u)
	return true
}

func (b *batch) emit(u Update) {
	send(b.updates, u)
}

func send(updates chan<- Update, u Update) {
	if updates != nil {
		updates <- u
	}
}

func (b *batch) OnFilesAdded(files []upload.File) {
	placeholders := make([]results.ImageResult, 0, len(files))
	for _, f := range files {
		info := metadata.Extract(f.Path)
		info[InfoFilename] = f.Name
		info[InfoType] = f.Kind.String()
		info[InfoImageQuality] = strconv.Itoa(b.params.ImageQuality)
		placeholders = append(placeholders, results.ImageResult{
			ID:          f.ID,
			Name:        f.Name,
			Size:        humanize.Bytes(uint64(f.Size)),
			Type:        f.Kind.String(),
			Progress:    0,
			Information: info,
			Status:      results.StatusUploading,
		})
	}

	b.commit(Update{Kind: UpdateAdded}, func(c *results.Collection) {
		for _, r := range placeholders {
			c.Upsert(r)
		}
	})
}

func (b *batch) OnUploadError(file upload.File, err error) {
	b.fail(file.ID, err)
}

func (b *batch) OnUploadSuccess(ctx context.Context, file upload.File) {
	ok := b.commit(Update{Kind: UpdateProgress, FileID: file.ID}, func(c *results.Collection) {
		c.Update(file.ID, func(r *results.ImageResult) { r.Status = results.StatusConverting })
	})
	if !ok {
		return
	}

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.convert(ctx, file)
	}()
}

func (b *batch) OnComplete(uploaded, failed int) {
	b.logger.Debug("uploads complete", zap.Int("uploaded", uploaded), zap.Int("failed", failed))
}

func (b *batch) convert(ctx context.Context, file upload.File) {
	log := b.logger.With(zap.String("file_id", file.ID), zap.String("name", file.Name))

	relayDone := make(chan struct{})
	var sub *progress.Subscription
	if b.session.progress != nil {
		var err error
		sub, err = b.session.progress.Subscribe(ctx, file.ID)
		if err != nil {
			log.Warn("progress unavailable", zap.Error(err))
		}
	}
	if sub != nil {
		go func() {
			defer close(relayDone)
			for ev := range sub.Events() {
				b.commit(Update{Kind: UpdateProgress, FileID: ev.FileID}, func(c *results.Collection) {
					c.SetProgress(ev.FileID, ev.Progress)
				})
			}
		}()
	} else {
		close(relayDone)
	}
	stopProgress := func() {
		if sub != nil {
			sub.Close()
			if err := sub.Err(); err != nil {
				log.Debug("progress stream ended", zap.Error(err))
			}
		}
		<-relayDone
	}

	outcome, err := b.session.converter.Convert(ctx, apiclient.ConvertRequest{
		FileID:  file.ID,
		Format:  b.params.FileOutputID,
		Quality: b.params.ImageQuality,
	})
	stopProgress()
	if err != nil {
		log.Warn("conversion failed", zap.Error(err))
		b.fail(file.ID, err)
		return
	}

	downloadURL, localPath, err := b.resolveDownload(file, outcome)
	if err != nil {
		log.Warn("could not store converted file", zap.Error(err))
		b.fail(file.ID, err)
		return
	}

	ok := b.commit(Update{Kind: UpdateConverted, FileID: file.ID}, func(c *results.Collection) {
		prev, _ := c.Get(file.ID)
		c.Upsert(b.converted(prev, file, outcome, downloadURL, localPath))
	})
	if ok {
		log.Info("conversion finished", zap.Duration("elapsed", outcome.Elapsed))
	}
}

// fail marks one entry failed and leaves every other entry untouched.
func (b *batch) fail(id string, err error) {
	b.commit(Update{Kind: UpdateFailed, FileID: id}, func(c *results.Collection) {
		c.Update(id, func(r *results.ImageResult) {
			r.Status = results.StatusFailed
			r.Error = err.Error()
		})
	})
}

func (b *batch) converted(prev results.ImageResult, file upload.File, out *apiclient.ConversionOutcome, downloadURL, localPath string) results.ImageResult {
	name := out.Filename
	if name == "" {
		name = outputName(file.Name, b.params.FileOutputID)
	}
	typ := out.Metadata.Type
	if typ == "" {
		typ = imgutil.ParseKind(b.params.FileOutputID).MIMEType()
	}
	size := out.Metadata.Size
	if size == 0 {
		size = int64(len(out.Data))
	}

	info := make(map[string]string, len(prev.Information)+6)
	for k, v := range prev.Information {
		info[k] = v
	}
	info[InfoSource] = file.Name
	info[InfoFilename] = name
	info[InfoType] = typ
	info[InfoElapsed] = out.Elapsed.Round(time.Millisecond).String()
	info[InfoImageQuality] = strconv.Itoa(b.params.ImageQuality)
	if !out.Metadata.CreatedAt.IsZero() {
		info[InfoCreated] = out.Metadata.CreatedAt.Local().Format(timeLayout)
	}
	if !out.Metadata.ModifiedAt.IsZero() {
		info[InfoModified] = out.Metadata.ModifiedAt.Local().Format(timeLayout)
	}

	return results.ImageResult{
		ID:          file.ID,
		Name:        name,
		Size:        humanize.Bytes(uint64(size)),
		SourceURL:   out.PreviewURL,
		DownloadURL: downloadURL,
		LocalPath:   localPath,
		Type:        typ,
		Progress:    progress.Complete,
		Information: info,
		Status:      results.StatusDone,
	}
}

// resolveDownload writes inline data to the output directory when the
// service returned the bytes instead of a URL. localPath is set only for
// files written here; server URLs must be http(s) or relative.
func (b *batch) resolveDownload(file upload.File, out *apiclient.ConversionOutcome) (downloadURL, localPath string, err error) {
	if len(out.Data) == 0 {
		if out.DownloadURL == "" {
			return "", "", errors.New("service returned neither data nor a download URL")
		}
		u, err := url.Parse(out.DownloadURL)
		if err != nil {
			return "", "", fmt.Errorf("invalid download URL: %w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "", "http", "https":
			return out.DownloadURL, "", nil
		default:
			return "", "", fmt.Errorf("refusing download URL with scheme %q", u.Scheme)
		}
	}

	name := out.Filename
	if name == "" {
		name = outputName(file.Name, b.params.FileOutputID)
	}
	dir := b.session.opts.OutputDir
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}
	dest := filepath.Join(dir, file.ID+"-"+filepath.Base(name))
	if err := os.WriteFile(dest, out.Data, 0o644); err != nil {
		return "", "", fmt.Errorf("write %s: %w", dest, err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return "", "", err
	}
	return "file://" + filepath.ToSlash(abs), abs, nil
}

func outputName(name, format string) string {
	ext := format
	if ext == "jpeg" {
		ext = "jpg"
	}
	return strings.TrimSuffix(name, filepath.Ext(name)) + "." + ext
}
