package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/storage"
	"github.com/kjstillabower/lunar-fishing-service/internal/store"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

var (
	ErrUpload        = errors.New("photo upload failed")
	ErrInsert        = errors.New("catch insert failed")
	ErrQuery         = errors.New("catch query failed")
	ErrDelete        = errors.New("catch delete failed")
	ErrCatchNotFound = errors.New("catch not found")
)

// Photo is an uploaded image accompanying a catch.
type Photo struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// CatchService runs the catch diary and the public wall.
type CatchService struct {
	repo   store.CatchRepository
	bucket storage.Bucket
	policy *bluemonday.Policy
	now    func() time.Time
}

func NewCatchService(repo store.CatchRepository, bucket storage.Bucket) *CatchService {
	return &CatchService{
		repo:   repo,
		bucket: bucket,
		policy: bluemonday.StrictPolicy(),
		now:    time.Now,
	}
}

// List returns the owner's catches, newest first. On failure it returns an
// empty list along with ErrQuery.
func (s *CatchService) List(ctx context.Context, ownerID string) ([]models.CatchRecord, error) {
	out, err := s.repo.ListByOwner(ctx, ownerID)
	observability.RecordCatchOperation("list", err)
	if err != nil {
		return []models.CatchRecord{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// ListPublic returns every public catch with its owner's username, newest first.
func (s *CatchService) ListPublic(ctx context.Context) ([]models.PublicCatch, error) {
	out, err := s.repo.ListPublic(ctx)
	observability.RecordCatchOperation("list_public", err)
	if err != nil {
		return []models.PublicCatch{}, fmt.Errorf("%w: %v", ErrQuery, err)
	}
	return out, nil
}

// Create validates and stores a catch for userID. When a photo is given it
// is uploaded first and its public URL stored with the row; if the insert
// then fails the uploaded photo stays in the bucket.
func (s *CatchService) Create(ctx context.Context, userID string, form validation.CatchForm, photo *Photo) (rec models.CatchRecord, err error) {
	defer func() { observability.RecordCatchOperation("create", err) }()
	logger := observability.LoggerFrom(ctx)

	if err := validation.ValidateCatchForm(&form); err != nil {
		return models.CatchRecord{}, err
	}
	species := s.sanitize(form.Species)
	if species == "" {
		return models.CatchRecord{}, fmt.Errorf("%w: species is required", validation.ErrInvalidInput)
	}

	nc := store.NewCatch{
		UserID:   userID,
		Species:  species,
		WeightKg: ParseMeasurement(form.Weight),
		LengthCm: ParseMeasurement(form.Length),
		Bait:     optional(s.sanitize(form.Bait)),
		Notes:    optional(s.sanitize(form.Notes)),
		IsPublic: form.IsPublic,
	}

	if photo != nil && photo.Body != nil {
		url, err := s.upload(ctx, userID, photo)
		if err != nil {
			logger.Warn("catch photo upload failed", zap.String("user_id", userID), zap.Error(err))
			return models.CatchRecord{}, err
		}
		nc.PhotoURL = &url
	}

	rec, err = s.repo.InsertCatch(ctx, nc)
	if err != nil {
		logger.Error("catch insert failed", zap.String("user_id", userID), zap.Error(err))
		return models.CatchRecord{}, fmt.Errorf("%w: %v", ErrInsert, err)
	}
	return rec, nil
}

func (s *CatchService) upload(ctx context.Context, userID string, photo *Photo) (string, error) {
	br := bufio.NewReaderSize(photo.Body, 512)
	head, _ := br.Peek(512)
	key := fmt.Sprintf("%s/%d.%s", userID, s.now().UnixMilli(), storage.ExtensionFor(photo.Filename, head))

	n, err := s.bucket.Upload(ctx, key, photo.ContentType, br)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUpload, err)
	}
	observability.PhotoUploadBytes.Observe(float64(n))
	return s.bucket.PublicURL(key), nil
}

// Delete removes the catch when ownerID owns it.
func (s *CatchService) Delete(ctx context.Context, ownerID string, id int64) (err error) {
	defer func() { observability.RecordCatchOperation("delete", err) }()

	if err := s.repo.DeleteCatch(ctx, ownerID, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrCatchNotFound
		}
		return fmt.Errorf("%w: %v", ErrDelete, err)
	}
	return nil
}

func (s *CatchService) sanitize(text string) string {
	return strings.TrimSpace(s.policy.Sanitize(text))
}

// ParseMeasurement reads a weight or length typed by the user. Blank or
// non-numeric text yields nil; a comma decimal separator ("2,5") is accepted.
func ParseMeasurement(text string) *float64 {
	t := strings.TrimSpace(text)
	if t == "" {
		return nil
	}
	if strings.Contains(t, ",") && !strings.Contains(t, ".") {
		t = strings.Replace(t, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(t, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
