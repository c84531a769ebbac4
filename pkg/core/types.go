// Package core holds the types shared across the gateway: the meeting draft
// produced by extraction and the error envelope returned to HTTP clients.
package core

import "strings"

// MeetingDraft is the structured result of transcript extraction. It is the
// one payload passed between extraction, validation, and booking; optional
// fields are empty strings. Datetime fields are ISO 8601.
type MeetingDraft struct {
	Title         string `json:"title"`
	Description   string `json:"description"`
	StartDateTime string `json:"startDateTime"`
	EndDateTime   string `json:"endDateTime"`
}

// HasStart reports whether the draft carries a usable start time.
func (d *MeetingDraft) HasStart() bool {
	return d != nil && strings.TrimSpace(d.StartDateTime) != ""
}
