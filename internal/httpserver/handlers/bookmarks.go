package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/httpserver/deps"
	"github.com/shelf-sh/shelf/internal/logger"
)

type addRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// mutationResponse reports the optimistic entry plus the durable
// outcome: "saved" when the store confirmed within the wait window,
// "pending" when the write is still in flight, "failed" otherwise.
type mutationResponse struct {
	Status   string           `json:"status"`
	Bookmark *domain.Bookmark `json:"bookmark,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// ListBookmarks returns the current visible list.
func ListBookmarks(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := d.Loop.Snapshot()
		if snap == nil {
			snap = []domain.Bookmark{}
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

// AddBookmark submits an add. The optimistic entry is visible
// immediately; the response carries the durable outcome when it arrives
// within the wait window.
func AddBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, mutationResponse{
				Status: "failed",
				Error:  "invalid request body",
			})
			return
		}

		bm, result, err := d.Loop.SubmitAdd(req.Title, req.URL)
		if err != nil {
			if errors.Is(err, domain.ErrValidation) {
				writeJSON(w, http.StatusBadRequest, mutationResponse{
					Status: "failed",
					Error:  err.Error(),
				})
				return
			}
			d.Logger.Error("add not accepted", logger.Error(err))
			writeJSON(w, http.StatusInternalServerError, mutationResponse{
				Status: "failed",
				Error:  "add not accepted",
			})
			return
		}

		status, errMsg := awaitOutcome(r, d.OpTimeout, result)
		writeJSON(w, http.StatusAccepted, mutationResponse{
			Status:   status,
			Bookmark: &bm,
			Error:    errMsg,
		})
	}
}

// DeleteBookmark submits a delete. Deleting an unknown id reports
// "saved": the entry is already gone.
func DeleteBookmark(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			writeJSON(w, http.StatusBadRequest, mutationResponse{
				Status: "failed",
				Error:  "missing bookmark id",
			})
			return
		}

		result := d.Loop.SubmitDelete(id)
		status, errMsg := awaitOutcome(r, d.OpTimeout, result)
		writeJSON(w, http.StatusAccepted, mutationResponse{
			Status: status,
			Error:  errMsg,
		})
	}
}

// awaitOutcome waits for the durable result until the wait window or
// the request context expires, whichever comes first.
func awaitOutcome(r *http.Request, wait time.Duration, result <-chan error) (string, string) {
	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case err := <-result:
		if err != nil {
			return "failed", err.Error()
		}
		return "saved", ""
	case <-timer.C:
		return "pending", ""
	case <-r.Context().Done():
		return "pending", ""
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
