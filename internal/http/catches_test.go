package http

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/lunar-fishing-service/internal/models"
	"github.com/kjstillabower/lunar-fishing-service/internal/storage"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x06\x00\x00\x00")

type photoPart struct {
	filename    string
	contentType string
	body        []byte
}

func multipartCatch(t *testing.T, fields map[string]string, photo *photoPart) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	if photo != nil {
		hdr := make(textproto.MIMEHeader)
		hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="photo"; filename=%q`, photo.filename))
		hdr.Set("Content-Type", photo.contentType)
		part, err := mw.CreatePart(hdr)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := part.Write(photo.body); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func (e *testEnv) postCatch(t *testing.T, session *http.Cookie, fields map[string]string, photo *photoPart) *httptest.ResponseRecorder {
	t.Helper()
	body, contentType := multipartCatch(t, fields, photo)
	req := httptest.NewRequest(http.MethodPost, "/api/catches", body)
	req.Header.Set("Content-Type", contentType)
	if session == nil {
		return e.do(req)
	}
	return e.do(req, session)
}

func TestCatches_RequireSignIn(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.get("/api/catches"), http.StatusUnauthorized, "UNAUTHORIZED")
	assertError(t, env.postCatch(t, nil, map[string]string{"species": "Robalo"}, nil), http.StatusUnauthorized, "UNAUTHORIZED")
	assertError(t, env.do(httptest.NewRequest(http.MethodDelete, "/api/catches/1", nil)), http.StatusUnauthorized, "UNAUTHORIZED")
}

func TestCatches_CreateWithPhoto(t *testing.T) {
	env := newTestEnv(t)
	session := env.signUp(t, "pescador@example.com", "pescador42")

	w := env.postCatch(t, session, map[string]string{
		"species":   "<b>Tucunaré</b>",
		"weight":    "2,5",
		"length":    "48",
		"bait":      "Isca artificial",
		"is_public": "on",
	}, &photoPart{filename: "tucunare.png", contentType: "image/png", body: pngHeader})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var rec models.CatchRecord
	decodeBody(t, w, &rec)
	if rec.Species != "Tucunaré" {
		t.Errorf("species = %q, want markup stripped", rec.Species)
	}
	if rec.WeightKg == nil || *rec.WeightKg != 2.5 {
		t.Errorf("weight = %v, want 2.5", rec.WeightKg)
	}
	if rec.LengthCm == nil || *rec.LengthCm != 48 {
		t.Errorf("length = %v, want 48", rec.LengthCm)
	}
	if rec.Notes != nil {
		t.Errorf("notes = %q, want nil", *rec.Notes)
	}
	if !rec.IsPublic {
		t.Error("IsPublic = false")
	}
	if rec.PhotoURL == nil || !strings.HasPrefix(*rec.PhotoURL, "/photos/"+rec.UserID+"/") || !strings.HasSuffix(*rec.PhotoURL, ".png") {
		t.Fatalf("photoUrl = %v", rec.PhotoURL)
	}

	w = env.get(*rec.PhotoURL)
	if w.Code != http.StatusOK {
		t.Fatalf("photo status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pngHeader) {
		t.Error("served photo differs from upload")
	}
	if w.Header().Get("Content-Type") != "image/png" {
		t.Errorf("photo Content-Type = %q", w.Header().Get("Content-Type"))
	}

	w = env.get("/api/catches", session)
	var list struct {
		Catches []models.CatchRecord `json:"catches"`
	}
	decodeBody(t, w, &list)
	if len(list.Catches) != 1 || list.Catches[0].ID != rec.ID {
		t.Errorf("catches = %+v", list.Catches)
	}
}

func TestCatches_CreateRejected(t *testing.T) {
	env := newTestEnv(t)
	session := env.signUp(t, "pescador@example.com", "pescador42")

	assertError(t, env.postCatch(t, session, map[string]string{"species": "   "}, nil), http.StatusBadRequest, "INVALID_INPUT")
	assertError(t, env.postCatch(t, session, map[string]string{"species": "<script>alert(1)</script>"}, nil),
		http.StatusBadRequest, "INVALID_INPUT")
	assertError(t, env.postCatch(t, session, map[string]string{"species": "Robalo"},
		&photoPart{filename: "notes.txt", contentType: "text/plain", body: []byte("not a photo")}),
		http.StatusBadRequest, "UPLOAD_FAILED")
	assertError(t, env.postCatch(t, session, map[string]string{"species": "Robalo"},
		&photoPart{filename: "fake.png", contentType: "image/png", body: []byte("plain text pretending")}),
		http.StatusBadRequest, "UPLOAD_FAILED")

	big := append(append([]byte{}, pngHeader...), bytes.Repeat([]byte{0}, 3<<19)...)
	assertError(t, env.postCatch(t, session, map[string]string{"species": "Robalo"},
		&photoPart{filename: "big.png", contentType: "image/png", body: big}),
		http.StatusRequestEntityTooLarge, "UPLOAD_FAILED")

	var list struct {
		Catches []models.CatchRecord `json:"catches"`
	}
	decodeBody(t, env.get("/api/catches", session), &list)
	if len(list.Catches) != 0 {
		t.Errorf("rejected uploads left %d catches", len(list.Catches))
	}
}

func TestCatches_URLEncodedForm(t *testing.T) {
	env := newTestEnv(t)
	session := env.signUp(t, "pescador@example.com", "pescador42")

	form := url.Values{"species": {"Robalo"}, "notes": {"Maré enchendo"}}
	req := httptest.NewRequest(http.MethodPost, "/api/catches", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := env.do(req, session)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201 (body %s)", w.Code, w.Body.String())
	}
	var rec models.CatchRecord
	decodeBody(t, w, &rec)
	if rec.PhotoURL != nil || rec.IsPublic {
		t.Errorf("rec = %+v", rec)
	}
	if rec.Notes == nil || *rec.Notes != "Maré enchendo" {
		t.Errorf("notes = %v", rec.Notes)
	}
}

func TestCatches_WallAndDelete(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signUp(t, "alice@example.com", "alice")
	bruno := env.signUp(t, "bruno@example.com", "bruno")

	var public, private models.CatchRecord
	decodeBody(t, env.postCatch(t, alice, map[string]string{"species": "Dourado", "is_public": "true"}, nil), &public)
	decodeBody(t, env.postCatch(t, alice, map[string]string{"species": "Pacu"}, nil), &private)

	var wall struct {
		Catches []models.PublicCatch `json:"catches"`
	}
	decodeBody(t, env.get("/api/wall"), &wall)
	if len(wall.Catches) != 1 || wall.Catches[0].ID != public.ID || wall.Catches[0].Username != "alice" {
		t.Fatalf("wall = %+v", wall.Catches)
	}

	var list struct {
		Catches []models.CatchRecord `json:"catches"`
	}
	decodeBody(t, env.get("/api/catches", bruno), &list)
	if len(list.Catches) != 0 {
		t.Errorf("bruno sees %d catches, want 0", len(list.Catches))
	}

	path := fmt.Sprintf("/api/catches/%d", public.ID)
	assertError(t, env.do(httptest.NewRequest(http.MethodDelete, path, nil), bruno), http.StatusNotFound, "NOT_FOUND")

	w := env.do(httptest.NewRequest(http.MethodDelete, path, nil), alice)
	if w.Code != http.StatusNoContent {
		t.Fatalf("owner delete status = %d, want 204", w.Code)
	}
	assertError(t, env.do(httptest.NewRequest(http.MethodDelete, path, nil), alice), http.StatusNotFound, "NOT_FOUND")

	decodeBody(t, env.get("/api/wall"), &wall)
	if len(wall.Catches) != 0 {
		t.Errorf("wall after delete = %+v", wall.Catches)
	}
	decodeBody(t, env.get("/api/catches", alice), &list)
	if len(list.Catches) != 1 || list.Catches[0].ID != private.ID {
		t.Errorf("alice catches = %+v", list.Catches)
	}
}

func TestGetPhoto_Errors(t *testing.T) {
	env := newTestEnv(t)

	assertError(t, env.get("/photos/nobody/1.png"), http.StatusNotFound, "NOT_FOUND")
	assertError(t, env.get("/photos/user/.hidden.png"), http.StatusBadRequest, "INVALID_INPUT")
}

// streamBucket serves a fixed, non-seekable object the way S3Bucket does.
type streamBucket struct {
	storage.Bucket
	obj storage.Object
}

func (b *streamBucket) Open(ctx context.Context, key string) (*storage.Object, error) {
	if key != "u1/1.webp" {
		return nil, storage.ErrKeyNotFound
	}
	obj := b.obj
	obj.Body = io.NopCloser(bytes.NewReader(pngHeader))
	return &obj, nil
}

func TestGetPhoto_StreamedObject(t *testing.T) {
	modified := time.Date(2024, 1, 25, 12, 0, 0, 0, time.UTC)
	env := newTestEnv(t, func(o *envOptions) {
		o.bucket = &streamBucket{obj: storage.Object{Name: "1.webp", ContentType: "image/webp", Size: int64(len(pngHeader)), ModTime: modified}}
	})

	w := env.get("/photos/u1/1.webp")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if !bytes.Equal(w.Body.Bytes(), pngHeader) {
		t.Error("streamed body differs")
	}
	for header, want := range map[string]string{
		"Content-Type":   "image/webp",
		"Content-Length": strconv.Itoa(len(pngHeader)),
		"Last-Modified":  modified.Format(http.TimeFormat),
		"Cache-Control":  "public, max-age=86400, immutable",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}
	assertError(t, env.get("/photos/u1/2.webp"), http.StatusNotFound, "NOT_FOUND")
}
