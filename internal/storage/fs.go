package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FSBucket is a Bucket on the local filesystem, used for development and
// single-node deployments.
type FSBucket struct {
	root     string
	baseURL  string
	maxBytes int64
}

var _ Bucket = (*FSBucket)(nil)

// NewFSBucket creates root if needed. baseURL prefixes public URLs
// (e.g. "/photos"); maxBytes <= 0 means no limit.
func NewFSBucket(root, baseURL string, maxBytes int64) (*FSBucket, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create bucket root: %w", err)
	}
	return &FSBucket{root: root, baseURL: strings.TrimRight(baseURL, "/"), maxBytes: maxBytes}, nil
}

// Upload writes r under key. The declared content type and the sniffed one
// must both be images. Returns the number of bytes stored.
func (b *FSBucket) Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	src, _, err := checkImage(contentType, r)
	if err != nil {
		return 0, err
	}

	dst := filepath.Join(b.root, filepath.FromSlash(clean))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return 0, fmt.Errorf("create temp object: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, readerWithContext(ctx, limited(src, b.maxBytes)))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return 0, fmt.Errorf("write object: %w", err)
	}
	if b.maxBytes > 0 && n > b.maxBytes {
		return 0, tooLarge(b.maxBytes)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("store object: %w", err)
	}
	return n, nil
}

// PublicURL returns the URL the object is served at.
func (b *FSBucket) PublicURL(key string) string {
	return publicURL(b.baseURL, key)
}

// Open returns the stored object. Its Body is the *os.File.
func (b *FSBucket) Open(ctx context.Context, key string) (*Object, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(b.root, filepath.FromSlash(clean)))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}
	info, err := f.Stat()
	if err != nil || info.IsDir() {
		f.Close()
		return nil, ErrKeyNotFound
	}
	return &Object{Body: f, Name: info.Name(), Size: info.Size(), ModTime: info.ModTime()}, nil
}
