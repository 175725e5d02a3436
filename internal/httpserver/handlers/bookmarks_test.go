package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/httpserver/deps"
	"github.com/shelf-sh/shelf/internal/logger"
	"github.com/shelf-sh/shelf/internal/reconcile"
)

type stubStore struct{}

func (s *stubStore) ListAll(ctx context.Context) ([]domain.Bookmark, error) {
	return nil, nil
}

func (s *stubStore) Insert(ctx context.Context, title, target string) (domain.Bookmark, error) {
	return domain.Bookmark{
		ID:        "42",
		Owner:     "user-1",
		Title:     title,
		Target:    target,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func (s *stubStore) DeleteByID(ctx context.Context, id string) error {
	return nil
}

func testDeps(t *testing.T) deps.Deps {
	t.Helper()
	log := logger.New("error", false)
	loop := reconcile.NewLoop(reconcile.NewEngine("user-1"), &stubStore{}, log, 2*time.Second)
	loop.Start(context.Background())
	t.Cleanup(loop.Stop)

	return deps.Deps{
		Logger:        log,
		StartTime:     time.Now(),
		TimeNow:       time.Now,
		Loop:          loop,
		ResyncTrigger: make(chan struct{}, 1),
		OpTimeout:     2 * time.Second,
	}
}

func TestListBookmarksEmpty(t *testing.T) {
	d := testDeps(t)

	req := httptest.NewRequest(http.MethodGet, "/api/bookmarks", nil)
	rec := httptest.NewRecorder()
	ListBookmarks(d)(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("body = %q, want empty json array", body)
	}
}

func TestAddBookmarkValidationRejected(t *testing.T) {
	d := testDeps(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks",
		strings.NewReader(`{"title": "  ", "url": "example.com"}`))
	rec := httptest.NewRecorder()
	AddBookmark(d)(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if len(d.Loop.Snapshot()) != 0 {
		t.Error("validation failure mutated the list")
	}
}

func TestAddBookmarkSaved(t *testing.T) {
	d := testDeps(t)

	req := httptest.NewRequest(http.MethodPost, "/api/bookmarks",
		strings.NewReader(`{"title": "Example", "url": "example.com"}`))
	rec := httptest.NewRecorder()
	AddBookmark(d)(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var resp mutationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Status != "saved" {
		t.Errorf("status = %q, want %q (error: %s)", resp.Status, "saved", resp.Error)
	}
	if resp.Bookmark == nil || resp.Bookmark.Target != "https://example.com" {
		t.Errorf("bookmark = %+v, want normalized target", resp.Bookmark)
	}
}

func TestDeleteBookmarkAbsentIsSaved(t *testing.T) {
	d := testDeps(t)

	r := chi.NewRouter()
	r.Delete("/api/bookmarks/{id}", DeleteBookmark(d))

	req := httptest.NewRequest(http.MethodDelete, "/api/bookmarks/missing", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusAccepted)
	}

	var resp mutationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid response body: %v", err)
	}
	if resp.Status != "saved" {
		t.Errorf("status = %q, want %q", resp.Status, "saved")
	}
}
