// Package storage keeps uploaded catch photos.
package storage

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gabriel-vasile/mimetype"
)

var (
	ErrInvalidKey  = errors.New("invalid object key")
	ErrNotImage    = errors.New("file is not an image")
	ErrTooLarge    = errors.New("file too large")
	ErrKeyNotFound = errors.New("object not found")
)

// Bucket stores objects under slash-separated keys and exposes them by URL.
type Bucket interface {
	Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error)
	PublicURL(key string) string
	Open(ctx context.Context, key string) (*Object, error)
}

// Object is a stored photo opened for reading. Body is an io.ReadSeeker
// when the backend supports ranged reads. ContentType may be empty.
type Object struct {
	Body        io.ReadCloser
	Name        string
	ContentType string
	Size        int64
	ModTime     time.Time
}

// sniffLen covers every signature mimetype checks for image formats.
const sniffLen = 3072

// CleanKey rejects keys that are empty, absolute, or escape the bucket.
func CleanKey(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, "\\\x00") {
		return "", ErrInvalidKey
	}
	clean := path.Clean("/" + key)[1:]
	if clean == "" || clean != key {
		return "", ErrInvalidKey
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == "." || seg == ".." || strings.HasPrefix(seg, ".") {
			return "", ErrInvalidKey
		}
	}
	return clean, nil
}

// checkImage verifies that the declared content type (when given) and the
// sniffed one are both images. The returned reader replays the sniffed bytes.
func checkImage(contentType string, r io.Reader) (io.Reader, *mimetype.MIME, error) {
	if contentType != "" && !strings.HasPrefix(contentType, "image/") {
		return nil, nil, fmt.Errorf("%w: declared %s", ErrNotImage, contentType)
	}
	br := bufio.NewReaderSize(r, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, fmt.Errorf("read upload: %w", err)
	}
	mt := mimetype.Detect(head)
	if !strings.HasPrefix(mt.String(), "image/") {
		return nil, nil, fmt.Errorf("%w: detected %s", ErrNotImage, mt.String())
	}
	return br, mt, nil
}

// limited caps r at maxBytes+1 so an oversized upload can be detected.
func limited(r io.Reader, maxBytes int64) io.Reader {
	if maxBytes <= 0 {
		return r
	}
	return io.LimitReader(r, maxBytes+1)
}

func tooLarge(maxBytes int64) error {
	return fmt.Errorf("%w: limit is %s", ErrTooLarge, humanize.IBytes(uint64(maxBytes)))
}

// publicURL joins baseURL and the path-escaped key segments.
func publicURL(baseURL, key string) string {
	segs := strings.Split(key, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return baseURL + "/" + strings.Join(segs, "/")
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func readerWithContext(ctx context.Context, r io.Reader) io.Reader {
	return &ctxReader{ctx: ctx, r: r}
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// ExtensionFor picks a file extension for an upload: the filename's own
// extension when present, otherwise one derived from the content.
func ExtensionFor(filename string, head []byte) string {
	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), "."); ext != "" && isSafeExt(ext) {
		return ext
	}
	if ext := strings.TrimPrefix(mimetype.Detect(head).Extension(), "."); ext != "" {
		return ext
	}
	return "bin"
}

func isSafeExt(ext string) bool {
	if len(ext) > 8 {
		return false
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9') {
			return false
		}
	}
	return true
}
