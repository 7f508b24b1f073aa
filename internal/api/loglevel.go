package api

import (
	"log/slog"
	"net/http"
	"strings"
)

type logLevelRequest struct {
	Level string `json:"level" validate:"required,oneof=debug info warn error"`
}

// HandleSetLogLevel changes the log level at runtime.
// POST /v1/loglevel
func (h *Handler) HandleSetLogLevel(w http.ResponseWriter, r *http.Request) {
	var req logLevelRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	var level slog.Level
	//nolint:errcheck // validated by oneof
	level.UnmarshalText([]byte(strings.ToUpper(req.Level)))
	h.logLevel.Set(level)
	h.logger.Info("log level changed", "level", level.String())
	writeJSON(w, http.StatusOK, map[string]string{"level": strings.ToLower(level.String())})
}
