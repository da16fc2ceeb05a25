package remote

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zeusync/playsync/internal/core/observability/log"
)

// NewSlaveRouter serves the WebSocket frame stream of a mirror together with
// its health and status endpoints.
func NewSlaveRouter(m *Mirror, logger log.Log) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/status", func(w http.ResponseWriter, _ *http.Request) {
		status := m.Status()
		code := http.StatusOK
		if status.Diverged {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(status); err != nil {
			logger.Warn("encode status", log.Error(err))
		}
	})

	r.Get(ReplicaPath, WebSocketHandler(m, logger))
	return r
}
