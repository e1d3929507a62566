// internal/controller/campaign_controller.go
package controller

import (
	"net/http"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/logger"
	"github.com/hexamarkco/kifersaude-sub002/internal/service"
)

type CampaignController struct {
	CampaignService *service.CampaignService
	BatchLimit      int
	Log             *logger.Logger
	Now             func() time.Time
}

// ProcessTargets advances one batch of campaign targets.
func (c *CampaignController) ProcessTargets(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	if c.Now != nil {
		now = c.Now()
	}
	results, err := c.CampaignService.ProcessPendingTargets(r.Context(), now, c.BatchLimit)
	if err != nil {
		writeError(w, c.Log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"processed": len(results), "results": results})
}
