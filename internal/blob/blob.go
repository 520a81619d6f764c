package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/wirechat-rooms/internal/store"
)

// ErrUnsupportedType is returned for files outside the image/video allow-list.
var ErrUnsupportedType = errors.New("unsupported file type")

var kinds = map[string]store.AttachmentKind{
	".jpg":  store.AttachmentImage,
	".jpeg": store.AttachmentImage,
	".png":  store.AttachmentImage,
	".gif":  store.AttachmentImage,
	".mp4":  store.AttachmentVideo,
	".mov":  store.AttachmentVideo,
	".avi":  store.AttachmentVideo,
}

// KindForFilename classifies a file by its extension, case-insensitively.
func KindForFilename(name string) (store.AttachmentKind, error) {
	ext := strings.ToLower(filepath.Ext(name))
	kind, ok := kinds[ext]
	if !ok {
		return "", fmt.Errorf("%q: %w", ext, ErrUnsupportedType)
	}
	return kind, nil
}

// DirStore keeps uploads in a local directory served under URLPrefix.
type DirStore struct {
	dir       string
	urlPrefix string
	log       *zerolog.Logger
}

// NewDirStore creates dir if needed.
func NewDirStore(dir, urlPrefix string, logger *zerolog.Logger) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &DirStore{dir: dir, urlPrefix: urlPrefix, log: logger}, nil
}

// Dir is the directory files are written to.
func (d *DirStore) Dir() string {
	return d.dir
}

// Save writes r under a fresh name keeping the original extension and returns
// the public URL with the attachment kind. Nothing is written for rejected types.
func (d *DirStore) Save(ctx context.Context, filename string, r io.Reader) (string, store.AttachmentKind, error) {
	kind, err := KindForFilename(filename)
	if err != nil {
		return "", "", err
	}
	if err := ctx.Err(); err != nil {
		return "", "", err
	}

	name := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	tmp, err := os.CreateTemp(d.dir, ".upload-*")
	if err != nil {
		return "", "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return "", "", fmt.Errorf("write upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", "", fmt.Errorf("close upload: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(d.dir, name)); err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}

	url := path.Join(d.urlPrefix, name)
	d.log.Debug().Str("file", name).Str("kind", string(kind)).Msg("upload stored")
	return url, kind, nil
}
