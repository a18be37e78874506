package web

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hpungsan/steno/internal/errors"
	"github.com/hpungsan/steno/internal/logging"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 16 << 20

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderError writes {"error":{"code","message","status"}}. Internal errors
// are logged and their message is not exposed.
func renderError(w http.ResponseWriter, logger *slog.Logger, err error) {
	sErr := errors.As(err)
	message := sErr.Message
	if sErr.Code == errors.ErrInternal {
		logger.Error("request failed", logging.Error(err))
		message = "internal error"
	}
	renderJSON(w, sErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(sErr.Code),
			"message": message,
			"status":  sErr.Status,
		},
	})
}

// decodeJSON reads a size-limited JSON body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		return errors.NewInvalidRequestf("invalid JSON body: %v", err)
	}
	return nil
}
