package identity

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Payload is a decoded gateway JSON object.
type Payload map[string]any

// Accessor reads one candidate field from a payload.
type Accessor func(Payload) any

// Field returns an accessor walking nested objects along path.
func Field(path ...string) Accessor {
	return func(p Payload) any {
		var current any = map[string]any(p)
		for _, key := range path {
			obj, ok := asObject(current)
			if !ok {
				return nil
			}
			current = obj[key]
		}
		return current
	}
}

func asObject(v any) (map[string]any, bool) {
	switch obj := v.(type) {
	case map[string]any:
		return obj, true
	case Payload:
		return obj, true
	default:
		return nil, false
	}
}

// ChatIdentifierFields lists where chat identifiers appear, highest
// precedence first. Lid-tagged values found here win over phone fields.
var ChatIdentifierFields = []Accessor{
	Field("chatLid"),
	Field("chat", "lid"),
	Field("chat", "chatLid"),
	Field("chat", "id"),
	Field("chat", "jid"),
	Field("message", "chatLid"),
	Field("message", "chat", "lid"),
	Field("message", "chat", "id"),
	Field("message", "remoteJid"),
	Field("message", "jid"),
	Field("message", "key", "remoteJid"),
	Field("contextInfo", "chatLid"),
	Field("contextInfo", "chat", "lid"),
	Field("contextInfo", "remoteJid"),
	Field("conversationLid"),
	Field("conversation", "lid"),
	Field("conversation", "chatLid"),
	Field("remoteLid"),
	Field("lid"),
	Field("chatId"),
	Field("remoteJid"),
	Field("jid"),
	Field("phone"),
}

// PhoneFields lists fields that may hold the contact's phone.
var PhoneFields = []Accessor{
	Field("phone"),
	Field("phoneNumber"),
	Field("senderPhone"),
	Field("participantPhone"),
	Field("contact", "phone"),
	Field("contact", "waid"),
	Field("contact", "jid"),
	Field("contact", "id"),
	Field("remotePhone"),
	Field("receiverPhone"),
	Field("recipientPhone"),
	Field("targetPhone"),
	Field("chatPhone"),
	Field("conversation", "phone"),
	Field("message", "phone"),
	Field("message", "participant"),
	Field("message", "chatId"),
	Field("message", "remoteJid"),
	Field("message", "jid"),
	Field("message", "key", "remoteJid"),
	Field("contextInfo", "remoteJid"),
	Field("contextInfo", "participant"),
}

// OutgoingPhoneFields are consulted in addition to PhoneFields when the
// payload was sent by us.
var OutgoingPhoneFields = []Accessor{
	Field("from"),
	Field("message", "from"),
}

// TargetPhoneFields lists where the recipient of a message may appear.
var TargetPhoneFields = []Accessor{
	Field("targetPhone"),
	Field("phone"),
	Field("phoneNumber"),
	Field("remotePhone"),
	Field("receiverPhone"),
	Field("recipientPhone"),
	Field("chatPhone"),
	Field("to"),
	Field("chatId"),
	Field("jid"),
	Field("message", "to"),
	Field("message", "chatId"),
	Field("message", "remoteJid"),
	Field("message", "jid"),
	Field("message", "key", "remoteJid"),
	Field("participantPhone"),
	Field("participant", "phone"),
	Field("participant", "jid"),
}

// ConnectedPhoneFields point at our own connected instance number.
var ConnectedPhoneFields = []Accessor{
	Field("connectedPhone"),
	Field("instancePhone"),
	Field("sessionPhone"),
	Field("connected", "phone"),
	Field("instance", "phone"),
	Field("session", "phone"),
	Field("me"),
	Field("me", "id"),
	Field("me", "jid"),
	Field("me", "phone"),
	Field("user", "id"),
	Field("user", "jid"),
	Field("owner", "id"),
	Field("account", "phone"),
	Field("account", "jid"),
	Field("profile", "jid"),
}

// Collect applies accessors in order and returns the trimmed, de-duplicated
// string values. Numbers are truncated to integers.
func Collect(p Payload, accessors []Accessor) []string {
	seen := make(map[string]struct{}, len(accessors))
	out := make([]string, 0, len(accessors))
	for _, access := range accessors {
		s, ok := Stringify(access(p))
		if !ok {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// Stringify converts a JSON scalar into a trimmed identifier string.
func Stringify(v any) (string, bool) {
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			s = strconv.FormatInt(i, 10)
		} else if f, err := val.Float64(); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			s = strconv.FormatFloat(math.Trunc(f), 'f', 0, 64)
		} else {
			s = val.String()
		}
	case float64:
		if math.IsInf(val, 0) || math.IsNaN(val) {
			return "", false
		}
		s = strconv.FormatFloat(math.Trunc(val), 'f', 0, 64)
	case int:
		s = strconv.Itoa(val)
	case int64:
		s = strconv.FormatInt(val, 10)
	default:
		return "", false
	}
	s = strings.TrimSpace(s)
	return s, s != ""
}

// ChatIdentifiers returns lid-tagged identifiers in precedence order, or the
// group-like ones when no lid is present.
func ChatIdentifiers(p Payload) []string {
	var preferred, secondary []string
	for _, value := range Collect(p, ChatIdentifierFields) {
		lower := strings.ToLower(value)
		if lidMarker.MatchString(lower) {
			preferred = append(preferred, value)
			continue
		}
		if strings.Contains(lower, "@g.us") || strings.Contains(lower, "-group") {
			secondary = append(secondary, value)
		}
	}
	if len(preferred) > 0 {
		return preferred
	}
	return secondary
}

// RawPhoneCandidates returns every phone-like raw value in precedence order.
func RawPhoneCandidates(p Payload) []string {
	accessors := PhoneFields
	if Bool(p["fromMe"]) {
		accessors = append(append([]Accessor{}, PhoneFields...), OutgoingPhoneFields...)
	}
	return Collect(p, accessors)
}

// ConnectedNumbers returns the canonical digits of our own instance number(s).
func ConnectedNumbers(p Payload) map[string]struct{} {
	out := make(map[string]struct{})
	for _, value := range Collect(p, ConnectedPhoneFields) {
		out[value] = struct{}{}
		if digits := PhoneDigits(value); digits != "" {
			out[digits] = struct{}{}
		}
	}
	return out
}

// TargetPhone picks the conversation counterpart: a lid-tagged chat id
// first, then the first recipient field that is not our own number.
func TargetPhone(p Payload) string {
	connected := ConnectedNumbers(p)
	for _, chatID := range ChatIdentifiers(p) {
		if _, own := connected[PhoneDigits(chatID)]; own {
			continue
		}
		return chatID
	}
	for _, value := range Collect(p, TargetPhoneFields) {
		if _, own := connected[value]; own {
			continue
		}
		if _, own := connected[PhoneDigits(value)]; own {
			continue
		}
		return value
	}
	return ""
}

// Bool reads a JSON boolean, accepting "true" strings.
func Bool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(val))
		return err == nil && b
	default:
		return false
	}
}

// String reads a JSON string field, trimmed.
func String(v any) string {
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
