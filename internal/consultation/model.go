package consultation

import (
	"errors"
	"strings"

	"medvoice/internal/persona"
)

var (
	ErrNotFound       = errors.New("session not found")
	ErrConflict       = errors.New("session identifier already exists")
	ErrUnknownPersona = errors.New("unknown persona")
)

// Turn is one finalised utterance of the conversation.
type Turn struct {
	Role string `json:"role"` // "user" or "assistant"
	Text string `json:"text"`
}

type Severity string

const (
	SeverityMild        Severity = "mild"
	SeverityModerate    Severity = "moderate"
	SeveritySevere      Severity = "severe"
	SeverityUnspecified Severity = "unspecified"
)

// ParseSeverity maps free model output onto the fixed enumeration.
func ParseSeverity(s string) Severity {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "moderate"):
		return SeverityModerate
	case strings.Contains(s, "severe"):
		return SeveritySevere
	case strings.Contains(s, "mild"):
		return SeverityMild
	default:
		return SeverityUnspecified
	}
}

// Report is the structured consultation outcome. Every field is always populated.
type Report struct {
	SessionID            string   `json:"sessionId"`
	Agent                string   `json:"agent"`
	User                 string   `json:"user"`
	Timestamp            string   `json:"timestamp"`
	ChiefComplaint       string   `json:"chiefComplaint"`
	Summary              string   `json:"summary"`
	Symptoms             []string `json:"symptoms"`
	Duration             string   `json:"duration"`
	Severity             Severity `json:"severity"`
	MedicationsMentioned []string `json:"medicationsMentioned"`
	Recommendations      []string `json:"recommendations"`
}

// summaryBlank is the set trimmed from a summary before the emptiness check.
// CountReported trims the same characters in SQL.
const summaryBlank = " \t\n\v\f\r"

// WellFormed reports whether r counts towards history and quota.
func (r *Report) WellFormed() bool {
	return r != nil && strings.Trim(r.Summary, summaryBlank) != ""
}

// Session is one voice consultation. Persona is a snapshot taken at creation.
type Session struct {
	ID           int64           `json:"id"`
	SessionID    string          `json:"sessionId"`
	Notes        string          `json:"notes"`
	Persona      persona.Persona `json:"selectedDoctor"`
	Conversation []Turn          `json:"conversation"`
	Report       *Report         `json:"report"`
	CreatedBy    string          `json:"createdBy"`
	CreatedOn    string          `json:"createdOn"`
}

// Reported filters sessions down to those with a well-formed report, keeping order.
func Reported(sessions []Session) []Session {
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if s.Report.WellFormed() {
			out = append(out, s)
		}
	}
	return out
}
