// Package ledger holds the contact bookkeeping shared by outreach, inbox
// and the launch flow. All functions mutate the passed-in documents; the
// caller persists them.
package ledger

import (
	"time"

	"github.com/onboardrbot/onboardrbot/internal/models"
)

// Caps bounds the per-record histories.
type Caps struct {
	ApproachExamples int
	MessageLog       int
}

// MarkContacted records one outbound send: creates or updates the Contact
// (attempts increment only here) and bumps the approach's sent counter.
func MarkContacted(s *models.State, doc *models.ApproachesDoc, user, approachName, message string, now time.Time, caps Caps) *models.Contact {
	c, ok := s.Contacts[user]
	if !ok {
		c = &models.Contact{User: user, FirstContact: now, Approach: approachName}
		s.Contacts[user] = c
	}
	c.LastContact = now
	c.Attempts++
	appendMessage(c, models.Message{Timestamp: now, Direction: models.DirectionOut, Text: message, Approach: approachName}, caps.MessageLog)

	if a, ok := doc.Approaches[approachName]; ok {
		a.Stats.Sent++
		msg := message
		if len(msg) > 200 {
			msg = msg[:200]
		}
		a.Examples = append(a.Examples, models.ApproachExample{Timestamp: now, To: user, Message: msg})
		if caps.ApproachExamples > 0 && len(a.Examples) > caps.ApproachExamples {
			a.Examples = a.Examples[len(a.Examples)-caps.ApproachExamples:]
		}
	}
	s.Stats.Outreach++
	return c
}

// MarkResponse records an inbound message. Responded is sticky: it is set
// here and never cleared. The response counter credits the approach used
// on the first touch.
func MarkResponse(s *models.State, doc *models.ApproachesDoc, user, message string, now time.Time, caps Caps) *models.Contact {
	c, ok := s.Contacts[user]
	if !ok {
		c = &models.Contact{User: user, FirstContact: now}
		s.Contacts[user] = c
	}
	first := !c.Responded
	c.Responded = true
	c.LastContact = now
	appendMessage(c, models.Message{Timestamp: now, Direction: models.DirectionIn, Text: message}, caps.MessageLog)

	if first && c.Approach != "" {
		if a, ok := doc.Approaches[c.Approach]; ok {
			a.Stats.Responses++
		}
	}
	return c
}

func MarkInterested(s *models.State, doc *models.ApproachesDoc, user string) {
	c, ok := s.Contacts[user]
	if !ok {
		return
	}
	if c.Interested {
		return
	}
	c.Interested = true
	if a, ok := doc.Approaches[c.Approach]; ok {
		a.Stats.Interested++
	}
}

func MarkRejected(s *models.State, user string) {
	if c, ok := s.Contacts[user]; ok {
		c.Rejected = true
	}
}

func MarkLaunched(s *models.State, doc *models.ApproachesDoc, user string) {
	c, ok := s.Contacts[user]
	if !ok {
		return
	}
	if c.Launched {
		return
	}
	c.Launched = true
	if a, ok := doc.Approaches[c.Approach]; ok {
		a.Stats.Launched++
	}
}

func appendMessage(c *models.Contact, m models.Message, limit int) {
	c.Messages = append(c.Messages, m)
	if limit > 0 && len(c.Messages) > limit {
		c.Messages = c.Messages[len(c.Messages)-limit:]
	}
}

// PushRing appends id to a processed-ID ring, dropping the oldest entries
// past the cap.
func PushRing(ring []string, id string, limit int) []string {
	ring = append(ring, id)
	if limit > 0 && len(ring) > limit {
		ring = ring[len(ring)-limit:]
	}
	return ring
}

func InRing(ring []string, id string) bool {
	for _, v := range ring {
		if v == id {
			return true
		}
	}
	return false
}
