package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"taskbot/internal/models"
)

var (
	// ErrTooLarge is returned when a file exceeds the configured size limit
	ErrTooLarge = errors.New("file is too large")
	// ErrUnsupported is returned for media kinds that cannot be attached
	ErrUnsupported = errors.New("unsupported file kind")
)

// Resolver turns a platform file id into a download URL.
// *tgbotapi.BotAPI satisfies it.
type Resolver interface {
	GetFileDirectURL(fileID string) (string, error)
}

// Options configures a Fetcher
type Options struct {
	Dir         string
	MaxSize     int64
	MemoryLimit int64
	Timeout     time.Duration
}

// Fetcher downloads chat files into temp files or memory
type Fetcher struct {
	resolver Resolver
	client   *http.Client
	dir      string
	maxSize  int64
	memLimit int64
	logger   *zap.Logger
}

// New creates a fetcher. The temp dir is created if missing.
func New(resolver Resolver, opts Options, logger *zap.Logger) (*Fetcher, error) {
	dir := opts.Dir
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "taskbot")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Fetcher{
		resolver: resolver,
		client:   &http.Client{Timeout: timeout},
		dir:      dir,
		maxSize:  opts.MaxSize,
		memLimit: opts.MemoryLimit,
		logger:   logger.Named("fetcher"),
	}, nil
}

// Dir returns the directory temp files are written to
func (f *Fetcher) Dir() string {
	return f.dir
}

// CheckSize rejects files whose declared size is above the limit
func (f *Fetcher) CheckSize(size int64) error {
	if f.maxSize > 0 && size > f.maxSize {
		return fmt.Errorf("%w: %d bytes, limit %d", ErrTooLarge, size, f.maxSize)
	}
	return nil
}

// Fetch downloads a remote ref. Small files with a known size are kept in memory,
// everything else goes to a temp file owned by the caller.
// Refs that are already downloaded are returned unchanged.
func (f *Fetcher) Fetch(ctx context.Context, ref models.FileRef) (models.FileRef, error) {
	if ref.Kind != models.RefRemote {
		return ref, nil
	}
	if !ref.Media.Supported() {
		return ref, ErrUnsupported
	}
	if err := f.CheckSize(ref.Size); err != nil {
		return ref, err
	}

	fileURL, err := f.resolver.GetFileDirectURL(ref.FileID)
	if err != nil {
		return ref, fmt.Errorf("failed to resolve file %s: %w", ref.FileID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return ref, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return ref, fmt.Errorf("failed to download file %s: %w", ref.FileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return ref, fmt.Errorf("failed to download file %s: status %d", ref.FileID, resp.StatusCode)
	}
	if err := f.CheckSize(resp.ContentLength); err != nil {
		return ref, err
	}

	body := io.Reader(resp.Body)
	if f.maxSize > 0 {
		body = io.LimitReader(resp.Body, f.maxSize+1)
	}

	size := ref.Size
	if size <= 0 {
		size = resp.ContentLength
	}
	if size > 0 && size <= f.memLimit {
		return f.toBlob(ref, body)
	}
	return f.toTempFile(ref, body)
}

func (f *Fetcher) toBlob(ref models.FileRef, body io.Reader) (models.FileRef, error) {
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return ref, fmt.Errorf("failed to read file %s: %w", ref.FileID, err)
	}
	if err := f.CheckSize(int64(buf.Len())); err != nil {
		return ref, err
	}

	ref.Kind = models.RefBlob
	ref.Data = buf.Bytes()
	ref.Size = int64(buf.Len())
	return ref, nil
}

func (f *Fetcher) toTempFile(ref models.FileRef, body io.Reader) (models.FileRef, error) {
	tmp, err := os.CreateTemp(f.dir, "tg-*"+safeExt(ref.Name))
	if err != nil {
		return ref, fmt.Errorf("failed to create temp file: %w", err)
	}
	path := tmp.Name()

	n, copyErr := io.Copy(tmp, body)
	closeErr := tmp.Close()

	fail := func(err error) (models.FileRef, error) {
		if rmErr := os.Remove(path); rmErr != nil {
			f.logger.Error("Failed to remove partial download", zap.String("path", path), zap.Error(rmErr))
		}
		return ref, err
	}

	switch {
	case copyErr != nil:
		return fail(fmt.Errorf("failed to write file %s: %w", ref.FileID, copyErr))
	case closeErr != nil:
		return fail(fmt.Errorf("failed to close temp file: %w", closeErr))
	}
	if err := f.CheckSize(n); err != nil {
		return fail(err)
	}

	ref.Kind = models.RefLocal
	ref.Path = path
	ref.Size = n
	return ref, nil
}

// Acquire downloads ref if needed, opens it and passes the reader to fn.
// Any temp file is deleted before Acquire returns, whatever fn does.
func (f *Fetcher) Acquire(ctx context.Context, ref models.FileRef, fn func(name string, r io.Reader) error) error {
	local, err := f.Fetch(ctx, ref)
	defer func() {
		if relErr := local.Release(); relErr != nil {
			f.logger.Error("Failed to release temp file", zap.String("path", local.Path), zap.Error(relErr))
		}
	}()
	if err != nil {
		return err
	}

	rc, err := local.Open()
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", local.Name, err)
	}
	defer rc.Close()

	return fn(local.Name, rc)
}

func safeExt(name string) string {
	ext := filepath.Ext(name)
	if len(ext) > 10 || strings.ContainsAny(ext, `/\`) {
		return ""
	}
	return ext
}
