package gateway

import (
	"fmt"
	"regexp"
	"strings"

	appErrors "github.com/hexamarkco/kifersaude-sub002/internal/errors"
)

type MediaKind string

const (
	MediaDocument MediaKind = "document"
	MediaImage    MediaKind = "image"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
)

// MediaRequest describes one attachment send. Payload is a URL or data URL.
type MediaRequest struct {
	Phone     string    `json:"phone"`
	Kind      MediaKind `json:"kind"`
	Payload   string    `json:"payload"`
	Caption   string    `json:"caption,omitempty"`
	FileName  string    `json:"fileName,omitempty"`
	MimeType  string    `json:"mimeType,omitempty"`
	Extension string    `json:"extension,omitempty"`
}

var mimeExtensions = map[string]string{
	"application/pdf":    "pdf",
	"application/msword": "doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   "docx",
	"application/vnd.ms-excel":                                                  "xls",
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         "xlsx",
	"application/vnd.ms-powerpoint":                                             "ppt",
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": "pptx",
	"application/zip":              "zip",
	"application/x-rar-compressed": "rar",
	"application/json":             "json",
	"text/plain":                   "txt",
	"image/jpeg":                   "jpg",
	"image/png":                    "png",
	"image/gif":                    "gif",
	"image/webp":                   "webp",
	"video/mp4":                    "mp4",
	"video/quicktime":              "mov",
	"video/x-msvideo":              "avi",
	"audio/mpeg":                   "mp3",
	"audio/mp4":                    "mp4",
	"audio/ogg":                    "ogg",
	"audio/webm":                   "webm",
	"audio/aac":                    "aac",
}

var (
	fileNameExtension = regexp.MustCompile(`\.([A-Za-z0-9]+)$`)
	dataURLMime       = regexp.MustCompile(`(?i)^data:([^;,]+)[;,]`)
	extensionJunk     = regexp.MustCompile(`[^a-z0-9]`)
)

// DocumentExtension picks the extension for /send-document: explicit value,
// then the file name, then the data URL mime type.
func DocumentExtension(explicit, fileName, payload string) string {
	candidates := []string{explicit}
	if m := fileNameExtension.FindStringSubmatch(strings.TrimSpace(fileName)); m != nil {
		candidates = append(candidates, m[1])
	}
	if m := dataURLMime.FindStringSubmatch(strings.TrimSpace(payload)); m != nil {
		candidates = append(candidates, mimeExtensions[strings.ToLower(m[1])])
	}
	for _, c := range candidates {
		if ext := sanitizeExtension(c); ext != "" {
			return ext
		}
	}
	return ""
}

func sanitizeExtension(ext string) string {
	ext = strings.TrimLeft(strings.ToLower(strings.TrimSpace(ext)), ".")
	return extensionJunk.ReplaceAllString(ext, "")
}

// Validate checks the fields every kind needs.
func (m MediaRequest) Validate() error {
	if strings.TrimSpace(m.Phone) == "" {
		return appErrors.NewValidation("phone", "is required")
	}
	if strings.TrimSpace(m.Payload) == "" {
		return appErrors.NewValidation("payload", "is required")
	}
	switch m.Kind {
	case MediaDocument:
		if DocumentExtension(m.Extension, m.FileName, m.Payload) == "" {
			return appErrors.NewValidation("extension", "could not determine the file extension")
		}
	case MediaImage, MediaVideo, MediaAudio:
	default:
		return appErrors.NewValidation("kind", fmt.Sprintf("unsupported attachment type %q", m.Kind))
	}
	return nil
}

// Endpoint returns the gateway path and JSON body for the request.
func (m MediaRequest) Endpoint() (string, map[string]any, error) {
	if err := m.Validate(); err != nil {
		return "", nil, err
	}
	body := map[string]any{"phone": strings.TrimSpace(m.Phone)}
	payload := strings.TrimSpace(m.Payload)
	caption := strings.TrimSpace(m.Caption)

	switch m.Kind {
	case MediaDocument:
		body["document"] = payload
		if name := strings.TrimSpace(m.FileName); name != "" {
			body["fileName"] = name
		}
		if caption != "" {
			body["caption"] = caption
		}
		return "/send-document/" + DocumentExtension(m.Extension, m.FileName, m.Payload), body, nil
	case MediaImage:
		body["image"] = payload
		if caption != "" {
			body["caption"] = caption
		}
		return "/send-image", body, nil
	case MediaVideo:
		body["video"] = payload
		if caption != "" {
			body["caption"] = caption
		}
		return "/send-video", body, nil
	default:
		body["audio"] = payload
		if mime := strings.TrimSpace(m.MimeType); mime != "" {
			body["mimeType"] = mime
		}
		return "/send-audio", body, nil
	}
}

// Preview is the chat preview line stored for a sent attachment.
func (m MediaRequest) Preview() string {
	caption := strings.TrimSpace(m.Caption)
	switch m.Kind {
	case MediaDocument:
		if caption != "" {
			return caption
		}
		if name := strings.TrimSpace(m.FileName); name != "" {
			return "📄 " + name
		}
		return "📄 Documento enviado"
	case MediaImage:
		if caption != "" {
			return caption
		}
		return "🖼️ Imagem enviada"
	case MediaVideo:
		if caption != "" {
			return caption
		}
		return "🎬 Vídeo enviado"
	default:
		return "🎵 Áudio enviado"
	}
}
