package models

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

// MediaKind is the kind of chat attachment a file came from
type MediaKind string

const (
	MediaDocument    MediaKind = "document"
	MediaPhoto       MediaKind = "photo"
	MediaVideo       MediaKind = "video"
	MediaAudio       MediaKind = "audio"
	MediaVoice       MediaKind = "voice"
	MediaSticker     MediaKind = "sticker"
	MediaUnsupported MediaKind = "unsupported"
)

// Supported reports whether files of this kind can be attached to a task
func (k MediaKind) Supported() bool {
	switch k {
	case MediaDocument, MediaPhoto, MediaVideo, MediaAudio, MediaVoice, MediaSticker:
		return true
	}
	return false
}

// RefKind tells where the bytes of a FileRef live
type RefKind int

const (
	// RefRemote is a platform file id that still has to be downloaded
	RefRemote RefKind = iota
	// RefLocal is a downloaded temp file owned by whoever holds the ref
	RefLocal
	// RefBlob is a downloaded file kept in memory
	RefBlob
)

func (k RefKind) String() string {
	switch k {
	case RefRemote:
		return "remote"
	case RefLocal:
		return "local"
	case RefBlob:
		return "blob"
	}
	return fmt.Sprintf("RefKind(%d)", int(k))
}

// FileRef is a pending attachment of a draft
type FileRef struct {
	Kind     RefKind
	Media    MediaKind
	FileID   string
	UniqueID string
	Path     string
	Data     []byte
	Name     string
	Size     int64
}

// Open returns a reader over the file bytes. Remote refs cannot be opened.
func (f FileRef) Open() (io.ReadCloser, error) {
	switch f.Kind {
	case RefLocal:
		return os.Open(f.Path)
	case RefBlob:
		return io.NopCloser(bytes.NewReader(f.Data)), nil
	}
	return nil, fmt.Errorf("file %q is not downloaded", f.Name)
}

// Release deletes the temp file behind a local ref. It is safe to call more than once.
func (f FileRef) Release() error {
	if f.Kind != RefLocal || f.Path == "" {
		return nil
	}
	if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove %s: %w", f.Path, err)
	}
	return nil
}
