package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3API is the subset of the S3 client the bucket uses.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Config locates photos inside an S3 (or S3-compatible) bucket.
type S3Config struct {
	Bucket string
	// Prefix is prepended to every object key, e.g. "catches/".
	Prefix string
	// BaseURL prefixes public URLs. "/photos" serves through the API;
	// a CDN or bucket website URL serves directly.
	BaseURL  string
	MaxBytes int64
}

// S3Bucket is a Bucket backed by S3.
type S3Bucket struct {
	client   S3API
	bucket   string
	prefix   string
	baseURL  string
	maxBytes int64
}

var _ Bucket = (*S3Bucket)(nil)

func NewS3Bucket(client S3API, cfg S3Config) (*S3Bucket, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket name is required")
	}
	prefix := strings.Trim(cfg.Prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Bucket{
		client:   client,
		bucket:   cfg.Bucket,
		prefix:   prefix,
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		maxBytes: cfg.MaxBytes,
	}, nil
}

// Upload checks the photo the same way FSBucket does, buffers it up to the
// size limit and stores it with a sniffed Content-Type.
func (b *S3Bucket) Upload(ctx context.Context, key, contentType string, r io.Reader) (int64, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return 0, err
	}
	src, mt, err := checkImage(contentType, r)
	if err != nil {
		return 0, err
	}

	var buf bytes.Buffer
	n, err := buf.ReadFrom(readerWithContext(ctx, limited(src, b.maxBytes)))
	if err != nil {
		return 0, fmt.Errorf("read upload: %w", err)
	}
	if b.maxBytes > 0 && n > b.maxBytes {
		return 0, tooLarge(b.maxBytes)
	}

	_, err = b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(b.prefix + clean),
		Body:          bytes.NewReader(buf.Bytes()),
		ContentLength: aws.Int64(n),
		ContentType:   aws.String(mt.String()),
		CacheControl:  aws.String("public, max-age=86400, immutable"),
	})
	if err != nil {
		return 0, fmt.Errorf("put object %s: %w", clean, err)
	}
	return n, nil
}

func (b *S3Bucket) PublicURL(key string) string {
	return publicURL(b.baseURL, key)
}

// Open streams the object. The caller closes Body.
func (b *S3Bucket) Open(ctx context.Context, key string) (*Object, error) {
	clean, err := CleanKey(key)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.prefix + clean),
	})
	if err != nil {
		var nsk *s3types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, ErrKeyNotFound
		}
		return nil, fmt.Errorf("get object %s: %w", clean, err)
	}
	return &Object{
		Body:        out.Body,
		Name:        path.Base(clean),
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
		ModTime:     aws.ToTime(out.LastModified),
	}, nil
}
