package models

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDraft_TextJoinsInArrivalOrder(t *testing.T) {
	d := NewDraft(1, Author{}, Category{Key: "q1"})

	d.AppendText("first")
	d.AppendText("second")
	d.AppendText("   ")
	d.AppendText("third")

	assert.Equal(t, "first\nsecond\nthird", d.Text())
}

func TestDraft_RemoveLastFile(t *testing.T) {
	d := NewDraft(1, Author{}, Category{Key: "q1"})
	d.AddFile(FileRef{FileID: "f1"})
	d.AddFile(FileRef{FileID: "f2"})
	d.AddFile(FileRef{FileID: "f3"})

	removed, err := d.RemoveLastFile()
	require.NoError(t, err)
	assert.Equal(t, "f3", removed.FileID)
	require.Len(t, d.Files, 2)
	assert.Equal(t, "f1", d.Files[0].FileID)
	assert.Equal(t, "f2", d.Files[1].FileID)
}

func TestDraft_RemoveLastFileEmpty(t *testing.T) {
	d := NewDraft(1, Author{}, Category{Key: "q1"})
	d.AppendText("text")
	before := d.Clone()

	_, err := d.RemoveLastFile()
	assert.ErrorIs(t, err, ErrNoFiles)
	assert.Equal(t, before, d)
}

func TestDraft_Validate(t *testing.T) {
	testCases := []struct {
		name    string
		draft   *Draft
		wantErr error
	}{
		{
			name:    "no category",
			draft:   &Draft{Lines: []string{"text"}},
			wantErr: ErrNoCategory,
		},
		{
			name:    "neither text nor files",
			draft:   &Draft{Category: Category{Key: "q1"}},
			wantErr: ErrEmptyDraft,
		},
		{
			name:  "text only",
			draft: &Draft{Category: Category{Key: "q1"}, Lines: []string{"text"}},
		},
		{
			name:  "files only",
			draft: &Draft{Category: Category{Key: "q1"}, Files: []FileRef{{FileID: "f1"}}},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.draft.Validate()
			if tc.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestDraft_ReleaseRemovesLocalFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.bin")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o600))

	d := NewDraft(1, Author{}, Category{Key: "q1"})
	d.AddFile(FileRef{Kind: RefLocal, Path: path})
	d.AddFile(FileRef{Kind: RefRemote, FileID: "remote"})

	require.NoError(t, d.Release())
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// second release is a no-op
	assert.NoError(t, d.Release())
}

func TestFileRef_Open(t *testing.T) {
	blob := FileRef{Kind: RefBlob, Data: []byte("hello"), Name: "a.txt"}
	rc, err := blob.Open()
	require.NoError(t, err)
	defer rc.Close()

	buf := make([]byte, 5)
	n, err := rc.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))

	_, err = FileRef{Kind: RefRemote, FileID: "x"}.Open()
	assert.Error(t, err)
}

func TestAuthor_DisplayName(t *testing.T) {
	assert.Equal(t, "Ivan Petrov (@ivan)", Author{FirstName: "Ivan", LastName: "Petrov", UserName: "ivan"}.DisplayName())
	assert.Equal(t, "@ivan", Author{UserName: "ivan"}.DisplayName())
	assert.Equal(t, "Ivan", Author{FirstName: "Ivan"}.DisplayName())
}

func TestMediaKind_Supported(t *testing.T) {
	for _, k := range []MediaKind{MediaDocument, MediaPhoto, MediaVideo, MediaAudio, MediaVoice, MediaSticker} {
		assert.True(t, k.Supported(), string(k))
	}
	assert.False(t, MediaUnsupported.Supported())
}
