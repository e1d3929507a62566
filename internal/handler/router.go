// internal/handler/router.go
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hexamarkco/kifersaude-sub002/internal/controller"
	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
)

// Controllers groups everything the router mounts.
type Controllers struct {
	Webhook   *controller.WebhookController
	Messages  *controller.MessageController
	Schedules *controller.ScheduleController
	Campaigns *controller.CampaignController
}

func NewRouter(c Controllers, cronSecret string, log *logger.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/whatsapp", func(r chi.Router) {
		r.Post("/webhook", c.Webhook.Receive)
		r.Post("/send-message", c.Messages.SendMessage)
		r.Post("/send-media", c.Messages.SendMedia)

		r.Post("/scheduled", c.Schedules.Create)
		r.Get("/scheduled", c.Schedules.List)
		r.Post("/scheduled/{id}/cancel", c.Schedules.Cancel)

		r.Group(func(r chi.Router) {
			r.Use(BearerAuth(cronSecret))
			r.Post("/scheduled/process", c.Schedules.Process)
			r.Post("/campaigns/process", c.Campaigns.ProcessTargets)
		})
	})
	return r
}
