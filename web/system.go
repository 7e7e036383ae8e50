package web

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/MrEthical07/catfeed/upload"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"
)

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request) {
	f, err := s.uploads.Open(r.Context(), chi.URLParam(r, "key"))
	if errors.Is(err, upload.ErrNotFound) {
		s.notFound(w, r)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	defer f.Close()

	h := w.Header()
	h.Set("Content-Type", f.ContentType)
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("Cache-Control", "public, max-age=86400, immutable")
	if f.Size > 0 {
		h.Set("Content-Length", strconv.FormatInt(f.Size, 10))
	}
	if !f.ModTime.IsZero() {
		h.Set("Last-Modified", f.ModTime.UTC().Format(http.TimeFormat))
	}
	if _, err := io.Copy(w, f.Reader); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Str("key", f.Key).Msg("catfeed: upload copy")
	}
}

type health struct {
	Status       string  `json:"status"`
	SessionStore string  `json:"session_store"`
	RedisRTTMs   float64 `json:"redis_rtt_ms,omitempty"`
	Database     string  `json:"database"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	out := health{Status: "ok", SessionStore: "ok", Database: "ok"}
	status := http.StatusOK

	rtt, err := s.engine.Ping(r.Context())
	if err != nil {
		out.Status, out.SessionStore = "degraded", err.Error()
		status = http.StatusServiceUnavailable
	} else {
		out.RedisRTTMs = float64(rtt.Microseconds()) / 1000
	}
	if err := s.content.Ping(r.Context()); err != nil {
		out.Status, out.Database = "degraded", err.Error()
		status = http.StatusServiceUnavailable
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(out)
}
