package controller

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

type ScheduleController struct {
	Service    *service.SchedulerService
	BatchLimit int
	Log        *logger.Logger
	Now        func() time.Time
}

func (c *ScheduleController) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *ScheduleController) Create(w http.ResponseWriter, r *http.Request) {
	var body struct {
		ChatID          string `json:"chatId"`
		Phone           string `json:"phone"`
		Message         string `json:"message"`
		ScheduledSendAt string `json:"scheduledSendAt"`
	}
	if err := decodeBody(r, w, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}
	sendAt, err := time.Parse(time.RFC3339, strings.TrimSpace(body.ScheduledSendAt))
	if err != nil {
		writeError(w, c.Log, appErrors.NewValidation("scheduledSendAt", "must be an RFC3339 timestamp"))
		return
	}

	m, err := c.Service.Schedule(r.Context(), body.ChatID, body.Phone, body.Message, sendAt)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (c *ScheduleController) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled, err := c.Service.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "id": id, "cancelled": cancelled})
}

func (c *ScheduleController) List(w http.ResponseWriter, r *http.Request) {
	list, err := c.Service.ListByChat(r.Context(), r.URL.Query().Get("chatId"))
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": list})
}

// Process runs one dispatch batch.
func (c *ScheduleController) Process(w http.ResponseWriter, r *http.Request) {
	results, err := c.Service.ProcessDue(r.Context(), c.now(), c.BatchLimit)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"processed": len(results), "results": results})
}
