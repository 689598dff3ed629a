package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"dokflow/api/internal/store"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file exceeds upload limit")
)

// Uploader validates multipart files and stores them under attachments/.
type Uploader struct {
	objects  ObjectStore
	maxBytes int64
	now      func() time.Time
}

func NewUploader(objects ObjectStore, maxBytes int64) *Uploader {
	return &Uploader{objects: objects, maxBytes: maxBytes, now: time.Now}
}

// Save uploads one file and returns its descriptor, not yet linked to a
// section.
func (u *Uploader) Save(ctx context.Context, fh *multipart.FileHeader) (store.File, error) {
	src, err := fh.Open()
	if err != nil {
		return store.File{}, fmt.Errorf("open %s: %w", fh.Filename, err)
	}
	defer src.Close()

	return u.SaveReader(ctx, fh.Filename, src)
}

// SaveReader reads at most maxBytes+1 bytes so an oversized body is
// rejected without buffering all of it.
func (u *Uploader) SaveReader(ctx context.Context, filename string, r io.Reader) (store.File, error) {
	limit := u.maxBytes
	if limit <= 0 {
		limit = 10 << 20
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return store.File{}, fmt.Errorf("read %s: %w", filename, err)
	}
	if len(data) == 0 {
		return store.File{}, fmt.Errorf("%s: %w", filename, ErrEmptyFile)
	}
	if int64(len(data)) > limit {
		return store.File{}, fmt.Errorf("%s: %w (%d bytes)", filename, ErrFileTooLarge, limit)
	}

	detected := mimetype.Detect(data)
	key := u.objectKey(filename, detected.Extension())

	if err := u.objects.Put(ctx, key, bytes.NewReader(data), int64(len(data)), detected.String()); err != nil {
		return store.File{}, err
	}

	return store.File{
		URL:       u.objects.PublicURL(key),
		Name:      filepath.Base(filename),
		ObjectKey: key,
		MimeType:  detected.String(),
		Size:      int64(len(data)),
	}, nil
}

// objectKey keeps the client's extension when it has one and falls back
// to the sniffed one.
func (u *Uploader) objectKey(filename, sniffedExt string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" {
		ext = sniffedExt
	}
	base := slugify(strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename)))
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return fmt.Sprintf("attachments/%s/%s_%s%s", u.now().Format("2006/01"), base, id, ext)
}

func slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer(" ", "-", "_", "-").Replace(s)
	s = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			return r
		}
		return -1
	}, s)
	if s == "" {
		return "file"
	}
	return s
}
