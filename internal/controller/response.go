package controller

import (
	"encoding/json"
	"net/http"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

const maxBodyBytes = 5 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps err onto a status code. Internal errors are logged and
// answered with a generic message.
func writeError(w http.ResponseWriter, log *logger.Logger, err error) {
	status := appErrors.HTTPStatus(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		log.Error("Request failed", "error", err)
		msg = "internal error"
	}
	writeJSON(w, status, map[string]interface{}{"success": false, "error": msg})
}

func decodeBody(r *http.Request, w http.ResponseWriter, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return appErrors.NewValidation("body", "invalid JSON")
	}
	return nil
}
