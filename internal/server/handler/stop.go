package handler

import (
	"log/slog"
	"net/http"
)

// StopHandler triggers a graceful shutdown of the whole process. It is the
// only mutating endpoint on the API.
type StopHandler struct {
	stop   func()
	logger *slog.Logger
}

// NewStopHandler creates a StopHandler. stop is typically the root context
// cancel; the server itself is torn down by the app once the context ends.
func NewStopHandler(stop func(), logger *slog.Logger) *StopHandler {
	return &StopHandler{
		stop:   stop,
		logger: logHandler(logger, "stop"),
	}
}

// Stop requests a graceful shutdown. The response is written before the
// trigger fires so the caller sees the acknowledgement.
// POST /api/stop
func (h *StopHandler) Stop(w http.ResponseWriter, r *http.Request) {
	if h.stop == nil {
		writeError(w, http.StatusServiceUnavailable, "shutdown hook not configured")
		return
	}

	h.logger.InfoContext(r.Context(), "shutdown requested over api",
		slog.String("remote_addr", r.RemoteAddr),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "stopping"})
	h.stop()
}
