package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jeremyjsx/uploads/internal/fileupload"
	"github.com/jeremyjsx/uploads/internal/middleware"
	"github.com/jeremyjsx/uploads/internal/storage"
)

const testAPIKey = "secret-key"

type testMockProvider struct {
	save   func(ctx context.Context, path string, content storage.Content) (string, error)
	exists func(ctx context.Context, path string) (bool, error)
}

func (m *testMockProvider) Save(ctx context.Context, path string, content storage.Content) (string, error) {
	if m.save != nil {
		return m.save(ctx, path, content)
	}
	return path, nil
}

func (m *testMockProvider) Exists(ctx context.Context, path string) (bool, error) {
	if m.exists != nil {
		return m.exists(ctx, path)
	}
	return false, nil
}

func (m *testMockProvider) Delete(context.Context, string) error {
	return nil
}

func (m *testMockProvider) URL(_ context.Context, path string, _ bool) (string, error) {
	return "https://files.example.com/" + path, nil
}

func testMux(backends BackendSource) *http.ServeMux {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	uploads := NewUploadsHandler(backends, logger)
	media := NewMediaHandler(backends, logger)
	requireAuth := middleware.Authenticate(testAPIKey, "")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", Health(backends))
	mux.Handle("PUT /fileupload/storage/{key}/{content_type}", requireAuth(uploads.Upload()))
	mux.HandleFunc("GET /media/{path...}", media.Serve())
	return mux
}

func testBackends(p storage.Provider) *fileupload.Holder {
	return fileupload.NewHolder(fileupload.NewBackend(p, fileupload.Options{KeyPrefix: "submissions_attachments"}))
}

func newUploadRequest(target string, body []byte) *http.Request {
	req := httptest.NewRequest(http.MethodPut, target, bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	return req
}

func TestUploadsHandler_Upload(t *testing.T) {
	var gotPath string
	var got storage.Content
	p := &testMockProvider{save: func(_ context.Context, path string, content storage.Content) (string, error) {
		gotPath, got = path, content
		return path, nil
	}}

	rec := httptest.NewRecorder()
	testMux(testBackends(p)).ServeHTTP(rec, newUploadRequest("/fileupload/storage/a%2Fb.png/image__png", []byte("data")))

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.Bytes())
	}
	if rec.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rec.Body.String())
	}
	if gotPath != "submissions_attachments/a_b.png" {
		t.Errorf("saved to %q", gotPath)
	}
	if got.ContentType != "image/png" || string(got.Data) != "data" {
		t.Errorf("content %+v", got)
	}
}

func TestUploadsHandler_Upload_Unauthenticated(t *testing.T) {
	called := false
	p := &testMockProvider{save: func(context.Context, string, storage.Content) (string, error) {
		called = true
		return "", nil
	}}

	req := httptest.NewRequest(http.MethodPut, "/fileupload/storage/k1/image__png", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	testMux(testBackends(p)).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if called {
		t.Error("provider reached without authentication")
	}
}

func TestUploadsHandler_Upload_MethodNotAllowed(t *testing.T) {
	for _, method := range []string{http.MethodPost, http.MethodGet, http.MethodDelete} {
		req := httptest.NewRequest(method, "/fileupload/storage/k1/image__png", nil)
		req.Header.Set("X-API-Key", testAPIKey)
		rec := httptest.NewRecorder()
		testMux(testBackends(&testMockProvider{})).ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s: expected 405, got %d", method, rec.Code)
		}
	}
}

func TestUploadsHandler_Upload_ProviderError(t *testing.T) {
	p := &testMockProvider{save: func(context.Context, string, storage.Content) (string, error) {
		return "", errors.New("bucket unreachable")
	}}

	rec := httptest.NewRecorder()
	testMux(testBackends(p)).ServeHTTP(rec, newUploadRequest("/fileupload/storage/k1/image__png", []byte("x")))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	var resp struct {
		Error APIError `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error.Code != "INTERNAL_ERROR" || strings.Contains(resp.Error.Message, "bucket") {
		t.Errorf("error %+v", resp.Error)
	}
}

func TestUploadsHandler_Upload_ResolvesBackendPerRequest(t *testing.T) {
	var first, second int
	backends := testBackends(&testMockProvider{save: func(_ context.Context, path string, _ storage.Content) (string, error) {
		first++
		return path, nil
	}})
	mux := testMux(backends)

	mux.ServeHTTP(httptest.NewRecorder(), newUploadRequest("/fileupload/storage/k1/text__plain", []byte("1")))
	backends.Swap(fileupload.NewBackend(&testMockProvider{save: func(_ context.Context, path string, _ storage.Content) (string, error) {
		second++
		return path, nil
	}}, fileupload.Options{}))
	mux.ServeHTTP(httptest.NewRecorder(), newUploadRequest("/fileupload/storage/k1/text__plain", []byte("2")))

	if first != 1 || second != 1 {
		t.Errorf("first=%d second=%d", first, second)
	}
}

func TestUploadsHandler_UploadThenServe(t *testing.T) {
	fs, err := storage.NewFileSystemStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("NewFileSystemStorage: %v", err)
	}
	backends := testBackends(fs)
	mux := testMux(backends)

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newUploadRequest("/fileupload/storage/a%2Fb.png/image__png", []byte("png-bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status %d", rec.Code)
	}

	u, ok, err := backends.Backend().GetDownloadURL(context.Background(), "a/b.png")
	if err != nil || !ok {
		t.Fatalf("GetDownloadURL ok=%v err=%v", ok, err)
	}

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, u, nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("serve status %d for %s", rec.Code, u)
	}
	if rec.Body.String() != "png-bytes" {
		t.Errorf("body %q", rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type %q", ct)
	}
}

func TestMediaHandler_Serve_NotFound(t *testing.T) {
	fs, err := storage.NewFileSystemStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("NewFileSystemStorage: %v", err)
	}
	rec := httptest.NewRecorder()
	testMux(testBackends(fs)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/missing.png", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestMediaHandler_Serve_OnlyRegularFiles(t *testing.T) {
	fs, err := storage.NewFileSystemStorage(t.TempDir(), "/media/")
	if err != nil {
		t.Fatalf("NewFileSystemStorage: %v", err)
	}
	mux := testMux(testBackends(fs))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, newUploadRequest("/fileupload/storage/a.png/image__png", []byte("png-bytes")))
	if rec.Code != http.StatusOK {
		t.Fatalf("upload status = %d", rec.Code)
	}

	for _, target := range []string{
		"/media/submissions_attachments",
		"/media/..%2F..%2Fetc/passwd",
	} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404 (body %q)", target, rec.Code, rec.Body.String())
		}
	}
}

func TestMediaHandler_Serve_NotOpener(t *testing.T) {
	rec := httptest.NewRecorder()
	testMux(testBackends(&testMockProvider{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/media/a.png", nil))
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("expected 501, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		rec := httptest.NewRecorder()
		testMux(testBackends(&testMockProvider{})).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected 200, got %d", rec.Code)
		}
	})

	t.Run("storage failing", func(t *testing.T) {
		p := &testMockProvider{exists: func(context.Context, string) (bool, error) { return false, errors.New("down") }}
		rec := httptest.NewRecorder()
		testMux(testBackends(p)).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		var resp healthResponse
		if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if resp.Checks["storage"] != "unhealthy" {
			t.Errorf("checks %v", resp.Checks)
		}
	})
}
