// Package identity tracks cross-platform handles. A handle seen in free
// text is only a claim; it becomes a link when the user explicitly states
// it is theirs. Claims are never auto-promoted.
package identity

import (
	"regexp"
	"strings"
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

var (
	handleRe = regexp.MustCompile(`@([A-Za-z0-9_]{2,15})\b`)
	// Explicit self-attribution only, e.g. "my handle is @foo",
	// "this is my x: foo". A bare @mention never confirms a link.
	selfRe = regexp.MustCompile(`(?i)\b(?:my (?:x |twitter )?handle(?: is)?|this is my (?:x|twitter|handle))\s*:?\s*@?([A-Za-z0-9_]{2,15})\b`)
)

// ExtractHandle returns the first @handle in text, without the sigil.
func ExtractHandle(text string) string {
	m := handleRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return m[1]
}

// RecordClaim stores an unconfirmed handle sighting. Duplicate claims for
// the same user+handle are dropped.
func RecordClaim(doc *models.ClaimsDoc, user, handle, source string, now time.Time) bool {
	handle = strings.TrimPrefix(handle, "@")
	if handle == "" {
		return false
	}
	for _, c := range doc.Claims {
		if c.User == user && strings.EqualFold(c.Handle, handle) {
			return false
		}
	}
	doc.Claims = append(doc.Claims, models.HandleClaim{User: user, Handle: handle, Source: source, ClaimedAt: now})
	return true
}

// Confirm parses text for an explicit self-attribution and, if found,
// records a confirmed link for user. Returns the linked handle or "".
func Confirm(ids *models.IdentitiesDoc, user, text string, now time.Time) string {
	m := selfRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	handle := m[len(m)-1]
	ids.Links[user] = &models.IdentityLink{User: user, XHandle: handle, ConfirmedAt: now}
	return handle
}

// Linked returns the confirmed handle for user, or "".
func Linked(ids *models.IdentitiesDoc, user string) string {
	if l, ok := ids.Links[user]; ok {
		return l.XHandle
	}
	return ""
}
