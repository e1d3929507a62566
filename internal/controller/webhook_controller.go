package controller

import (
	"io"
	"net/http"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

type WebhookController struct {
	Service *service.WebhookService
	Log     *logger.Logger
}

// Receive handles every gateway callback posted to the webhook URL.
func (c *WebhookController) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, c.Log, appErrors.NewValidation("body", "could not read request body"))
		return
	}
	payload, err := service.DecodePayload(body)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}

	result, err := c.Service.Handle(r.Context(), payload)
	if err != nil {
		if appErrors.IsValidation(err) {
			c.Log.Warn("Rejected webhook payload", "error", err)
		}
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
