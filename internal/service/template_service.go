// internal/service/template_service.go
package service

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/hexamarkco/kifersaude-sub002/internal/model"
)

var placeholderPattern = regexp.MustCompile(`(?i)\{\{\s*([\w.]+)\s*\}\}`)

// RenderTemplate replaces {{ name }} placeholders with vars[name].
// Names are matched case-insensitively; unknown names render empty.
func RenderTemplate(template string, vars map[string]string) string {
	return placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		groups := placeholderPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return ""
		}
		return vars[strings.ToLower(groups[1])]
	})
}

// Greeting picks the Portuguese salutation for the hour of t.
func Greeting(t time.Time) string {
	switch h := t.Hour(); {
	case h < 12:
		return "Bom dia"
	case h < 18:
		return "Boa tarde"
	default:
		return "Boa noite"
	}
}

// TemplateVars builds the placeholder values for one campaign target.
func TemplateVars(t *model.CampaignTarget, now time.Time, loc *time.Location) map[string]string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	greeting := Greeting(local)
	vars := map[string]string{
		"saudacao":      greeting,
		"greeting":      greeting,
		"telefone":      t.Phone,
		"campanha_nome": t.CampaignName,
		"data_envio":    local.Format("02/01/2006"),
		"hora_envio":    local.Format("15:04"),
	}
	for key, value := range t.Metadata {
		if s, ok := scalarString(value); ok {
			vars["meta_"+strings.ToLower(key)] = s
		}
	}
	return vars
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case bool:
		return fmt.Sprintf("%t", val), true
	case json.Number:
		return val.String(), true
	case float64:
		return fmt.Sprintf("%v", val), true
	case int, int64, int32:
		return fmt.Sprintf("%d", val), true
	default:
		return "", false
	}
}
