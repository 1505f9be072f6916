package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/kjstillabower/lunar-fishing-service/internal/auth"
	"github.com/kjstillabower/lunar-fishing-service/internal/observability"
	"github.com/kjstillabower/lunar-fishing-service/internal/service"
	"github.com/kjstillabower/lunar-fishing-service/internal/storage"
	"github.com/kjstillabower/lunar-fishing-service/internal/validation"
)

// multipartMemory is how much of a multipart form is held in memory before
// spilling file parts to disk.
const multipartMemory = 1 << 20

// GetCatches handles GET /api/catches: the signed-in user's diary.
func (h *Handler) GetCatches(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	catches, err := h.catches.List(r.Context(), u.ID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"catches": catches})
}

// GetWall handles GET /api/wall: every public catch with its owner's username.
func (h *Handler) GetWall(w http.ResponseWriter, r *http.Request) {
	catches, err := h.catches.ListPublic(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"catches": catches})
}

// PostCatch handles POST /api/catches. The body is a multipart form with
// species, weight, length, bait, notes, is_public and an optional photo
// file; a urlencoded form without photo is accepted too.
func (h *Handler) PostCatch(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+multipartMemory)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, r, http.StatusRequestEntityTooLarge, "UPLOAD_FAILED", "request body too large")
			return
		}
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "malformed form body")
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	form := validation.CatchForm{
		Species:  r.FormValue("species"),
		Weight:   r.FormValue("weight"),
		Length:   r.FormValue("length"),
		Bait:     r.FormValue("bait"),
		Notes:    r.FormValue("notes"),
		IsPublic: parseCheckbox(r.FormValue("is_public")),
	}

	var photo *service.Photo
	if r.MultipartForm != nil {
		file, header, ferr := r.FormFile("photo")
		switch {
		case ferr == nil:
			defer file.Close()
			photo = &service.Photo{
				Filename:    header.Filename,
				ContentType: header.Header.Get("Content-Type"),
				Body:        file,
			}
		case errors.Is(ferr, http.ErrMissingFile):
		default:
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "unreadable photo part")
			return
		}
	}

	rec, err := h.catches.Create(r.Context(), u.ID, form, photo)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	observability.LoggerFrom(r.Context()).Info("catch created",
		zap.Int64("catch_id", rec.ID), zap.Bool("public", rec.IsPublic), zap.Bool("photo", rec.PhotoURL != nil))
	writeJSON(w, http.StatusCreated, rec)
}

// DeleteCatch handles DELETE /api/catches/{id}.
func (h *Handler) DeleteCatch(w http.ResponseWriter, r *http.Request) {
	u, _ := auth.UserFrom(r.Context())
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "catch id must be a positive integer")
		return
	}
	if err := h.catches.Delete(r.Context(), u.ID, id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetPhoto handles GET /photos/{key}.
func (h *Handler) GetPhoto(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	obj, err := h.bucket.Open(r.Context(), key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidKey):
			writeError(w, r, http.StatusBadRequest, "INVALID_INPUT", "invalid photo key")
		case errors.Is(err, storage.ErrKeyNotFound):
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", "photo not found")
		default:
			writeServiceError(w, r, err)
		}
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Cache-Control", "public, max-age=86400, immutable")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if obj.ContentType != "" {
		w.Header().Set("Content-Type", obj.ContentType)
	}
	if rs, ok := obj.Body.(io.ReadSeeker); ok {
		http.ServeContent(w, r, obj.Name, obj.ModTime, rs)
		return
	}
	if !obj.ModTime.IsZero() {
		w.Header().Set("Last-Modified", obj.ModTime.UTC().Format(http.TimeFormat))
	}
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	if _, err := io.Copy(w, obj.Body); err != nil {
		observability.LoggerFrom(r.Context()).Warn("photo stream interrupted", zap.String("key", key), zap.Error(err))
	}
}

func parseCheckbox(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "on", "yes":
		return true
	}
	return false
}
