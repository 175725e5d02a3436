package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shelf-sh/shelf/internal/domain"
	"github.com/shelf-sh/shelf/internal/httpserver/deps"
	"github.com/shelf-sh/shelf/internal/logger"
)

// Events streams the visible list as server-sent events: one snapshot
// immediately, then one per engine mutation. The dashboard re-renders
// from whole snapshots instead of patching rows itself.
func Events(d deps.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")

		snapshots, cancel := d.Loop.Watch()
		defer cancel()

		if err := writeSnapshot(w, flusher, d.Loop.Snapshot()); err != nil {
			return
		}

		d.Logger.Debug("event stream opened",
			logger.String("remote_ip", r.RemoteAddr))

		for {
			select {
			case snap := <-snapshots:
				if err := writeSnapshot(w, flusher, snap); err != nil {
					return
				}
			case <-r.Context().Done():
				return
			}
		}
	}
}

func writeSnapshot(w http.ResponseWriter, flusher http.Flusher, snap []domain.Bookmark) error {
	if snap == nil {
		snap = []domain.Bookmark{}
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
