// Package upload validates local files against the batch restrictions and
// sends them to the conversion service.
package upload

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swiftconvert/internal/metadata"
	"swiftconvert/pkg/imgutil"
)

// IDPrefix starts every file id handed to the service.
const IDPrefix = "swift-convert-"

type Restrictions struct {
	MaxNumberOfFiles  int
	MaxFileSize       int64
	MaxTotalFileSize  int64
	AllowedInputTypes []string
}

// File is a validated upload candidate.
type File struct {
	ID   string
	Path string
	Name string
	Size int64
	Kind imgutil.Kind
}

// Notice explains why a file was left out of the batch.
type Notice struct {
	Path   string
	Reason string
}

func (n Notice) String() string {
	return fmt.Sprintf("%s: %s", filepath.Base(n.Path), n.Reason)
}

// Hooks receives upload lifecycle events. Methods may be called from
// several goroutines at once.
type Hooks interface {
	OnFilesAdded(files []File)
	OnUploadSuccess(ctx context.Context, file File)
	OnUploadError(file File, err error)
	OnComplete(uploaded, failed int)
}

// Sender transfers one file to the service.
type Sender interface {
	Upload(ctx context.Context, fileID, filename string, content io.Reader) error
}

// Prepare expands directories, sniffs every file and applies the
// restrictions. Rejected files are reported as notices; the rest keep their
// input order. target is the output format of the batch; files already in
// that format are rejected.
func Prepare(paths []string, r Restrictions, target imgutil.Kind) ([]File, []Notice) {
	var (
		files   []File
		notices []Notice
		total   int64
	)

	allowed := make(map[imgutil.Kind]bool, len(r.AllowedInputTypes))
	for _, t := range r.AllowedInputTypes {
		allowed[imgutil.ParseKind(t)] = true
	}

	for _, path := range expand(paths, &notices) {
		reject := func(reason string) {
			notices = append(notices, Notice{Path: path, Reason: reason})
		}

		info, err := os.Stat(path)
		if err != nil {
			reject(err.Error())
			continue
		}

		kind, err := imgutil.SniffFile(path)
		if err != nil || kind == imgutil.KindUnknown {
			reject("not a recognised image")
			continue
		}
		if len(allowed) > 0 && !allowed[kind] {
			reject(fmt.Sprintf("%s files are not accepted", kind))
			continue
		}
		if target != imgutil.KindUnknown && kind == target {
			reject(fmt.Sprintf("already %s", kind))
			continue
		}
		if r.MaxFileSize > 0 && info.Size() > r.MaxFileSize {
			reject(fmt.Sprintf("larger than %s", humanize.Bytes(uint64(r.MaxFileSize))))
			continue
		}
		if r.MaxTotalFileSize > 0 && total+info.Size() > r.MaxTotalFileSize {
			reject(fmt.Sprintf("batch would exceed %s", humanize.Bytes(uint64(r.MaxTotalFileSize))))
			continue
		}
		if r.MaxNumberOfFiles > 0 && len(files) >= r.MaxNumberOfFiles {
			reject(fmt.Sprintf("more than %d files selected", r.MaxNumberOfFiles))
			continue
		}

		total += info.Size()
		files = append(files, File{
			ID:   NewID(),
			Path: path,
			Name: filepath.Base(path),
			Size: info.Size(),
			Kind: kind,
		})
	}

	return files, notices
}

// NewID returns a fresh service file id.
func NewID() string {
	return IDPrefix + uuid.NewString()
}

func expand(paths []string, notices *[]Notice) []string {
	var out []string
	for _, root := range paths {
		info, err := os.Stat(root)
		if err != nil {
			*notices = append(*notices, Notice{Path: root, Reason: err.Error()})
			continue
		}
		if !info.IsDir() {
			out = append(out, root)
			continue
		}

		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.Type().IsRegular() {
				out = append(out, path)
			}
			return nil
		})
		if err != nil {
			*notices = append(*notices, Notice{Path: root, Reason: err.Error()})
		}
	}
	return out
}

type Uploader struct {
	sender        Sender
	maxConcurrent int
	logger        *zap.Logger

	// StripMetadata removes EXIF, XMP and text chunks from JPEG and PNG
	// sources while they are sent. Other kinds are sent unchanged.
	StripMetadata bool
}

// NewUploader caps parallel uploads at maxConcurrent; 0 means unlimited.
func NewUploader(sender Sender, maxConcurrent int, logger *zap.Logger) *Uploader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{sender: sender, maxConcurrent: maxConcurrent, logger: logger}
}

// Upload sends every file concurrently and reports each outcome through
// hooks. A failed file never stops the others. It returns when all uploads
// have finished (or ctx is cancelled), after calling OnComplete.
func (u *Uploader) Upload(ctx context.Context, files []File, hooks Hooks) {
	hooks.OnFilesAdded(files)

	var g errgroup.Group
	if u.maxConcurrent > 0 {
		g.SetLimit(u.maxConcurrent)
	}

	results := make([]bool, len(files))
	for i, file := range files {
		g.Go(func() error {
			if err := u.send(ctx, file); err != nil {
				u.logger.Warn("upload failed", zap.String("file_id", file.ID), zap.String("name", file.Name), zap.Error(err))
				hooks.OnUploadError(file, err)
				return nil
			}
			results[i] = true
			u.logger.Debug("upload finished", zap.String("file_id", file.ID), zap.String("name", file.Name))
			hooks.OnUploadSuccess(ctx, file)
			return nil
		})
	}
	_ = g.Wait()

	uploaded := 0
	for _, ok := range results {
		if ok {
			uploaded++
		}
	}
	hooks.OnComplete(uploaded, len(files)-uploaded)
}

func (u *Uploader) send(ctx context.Context, file File) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Open(file.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if !u.StripMetadata || !metadata.CanStrip(file.Kind) {
		return u.sender.Upload(ctx, file.ID, file.Name, f)
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(metadata.Strip(f, pw, file.Kind))
	}()
	defer pr.Close()
	return u.sender.Upload(ctx, file.ID, file.Name, pr)
}
