// Package identity turns raw WhatsApp identifiers into canonical forms.
package identity

import (
	"regexp"
	"strings"
)

// CountryCode is the national prefix applied to bare local numbers.
const CountryCode = "55"

type Kind string

const (
	KindNone    Kind = "none"
	KindPhone   Kind = "phone"
	KindChatLid Kind = "chat-lid"
	KindGroup   Kind = "group"
)

var (
	lidMarker    = regexp.MustCompile(`(?i)@lid\b|\blid@|:lid\b|\blid:`)
	groupMarker  = regexp.MustCompile(`(?i)@g\.us\b|[-_]group\b`)
	lidPrefix    = regexp.MustCompile(`(?i)^lid[@:]`)
	lidSuffix    = regexp.MustCompile(`(?i)[@:]lid$`)
	userDomain   = regexp.MustCompile(`(?i)@s\.whatsapp\.net$`)
	nonDigit     = regexp.MustCompile(`\D`)
	leadingZeros = regexp.MustCompile(`^0+`)
)

// Identity is a normalized identifier. Raw keeps the trimmed input.
type Identity struct {
	Value string
	Kind  Kind
	Raw   string
}

// Normalize canonicalises raw. It is idempotent on Value.
func Normalize(raw string) Identity {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Identity{Kind: KindNone}
	}
	lower := strings.ToLower(trimmed)
	if groupMarker.MatchString(lower) {
		return Identity{Value: lower, Kind: KindGroup, Raw: trimmed}
	}

	kind := KindPhone
	if lidMarker.MatchString(lower) {
		kind = KindChatLid
	}

	digits := PhoneDigits(trimmed)
	if digits == "" {
		if strings.Contains(trimmed, "@") {
			return Identity{Value: trimmed, Kind: KindNone, Raw: trimmed}
		}
		return Identity{Kind: KindNone, Raw: trimmed}
	}
	return Identity{Value: digits, Kind: kind, Raw: trimmed}
}

// PhoneDigits returns the canonical digit string for raw, or "" when raw is
// a group or carries no digits.
func PhoneDigits(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || groupMarker.MatchString(trimmed) {
		return ""
	}

	sanitized := lidPrefix.ReplaceAllString(trimmed, "")
	sanitized = lidSuffix.ReplaceAllString(sanitized, "")
	sanitized = userDomain.ReplaceAllString(sanitized, "")

	digits := nonDigit.ReplaceAllString(sanitized, "")
	digits = leadingZeros.ReplaceAllString(digits, "")
	if digits == "" {
		return ""
	}

	if strings.HasPrefix(digits, CountryCode) {
		// The gateway sometimes emits an extra zero after the country code.
		for len(digits) >= 13 && strings.HasPrefix(digits, CountryCode+"0") {
			digits = CountryCode + digits[len(CountryCode)+1:]
		}
		return digits
	}
	if len(digits) == 10 || len(digits) == 11 {
		return CountryCode + digits
	}
	return digits
}

// ChatLid returns the canonical digits of a lid-tagged identifier.
func ChatLid(raw string) (string, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || IsGroup(trimmed) || !HasLidMarker(trimmed) {
		return "", false
	}
	digits := PhoneDigits(trimmed)
	if digits == "" {
		return "", false
	}
	return digits, true
}

func HasLidMarker(raw string) bool {
	return lidMarker.MatchString(strings.ToLower(raw))
}

// IsGroup reports a group JID or a "-group"/"_group" suffixed id.
func IsGroup(raw string) bool {
	return groupMarker.MatchString(strings.ToLower(strings.TrimSpace(raw)))
}
