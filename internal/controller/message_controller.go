package controller

import (
	"net/http"

	"github.com/hexamarkco/kifersaude-sub002/internal/gateway"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

type MessageController struct {
	Sender service.MessageSender
	Log    *logger.Logger
}

func (c *MessageController) SendMessage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Phone   string `json:"phone"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, w, &body); err != nil {
		writeError(w, c.Log, err)
		return
	}

	res, err := c.Sender.SendText(r.Context(), body.Phone, body.Message)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat": res.Chat, "message": res.Message})
}

func (c *MessageController) SendMedia(w http.ResponseWriter, r *http.Request) {
	var req gateway.MediaRequest
	if err := decodeBody(r, w, &req); err != nil {
		writeError(w, c.Log, err)
		return
	}

	res, err := c.Sender.SendMedia(r.Context(), req)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "chat": res.Chat, "message": res.Message})
}
