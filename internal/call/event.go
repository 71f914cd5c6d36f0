package call

import (
	"encoding/json"
	"fmt"
	"strings"
)

type EventType string

const (
	EventCallStart   EventType = "call-start"
	EventCallEnd     EventType = "call-end"
	EventTranscript  EventType = "transcript"
	EventSpeechStart EventType = "speech-start"
	EventSpeechEnd   EventType = "speech-end"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Event is one normalised voice-service notification.
type Event struct {
	Type  EventType
	Role  string
	Text  string
	Final bool
}

// serverMessage is the subset of the voice service's webhook envelope we consume.
type serverMessage struct {
	Message struct {
		Type           string `json:"type"`
		Status         string `json:"status"`
		Role           string `json:"role"`
		TranscriptType string `json:"transcriptType"`
		Transcript     string `json:"transcript"`
		Call           struct {
			ID                 string            `json:"id"`
			Metadata           map[string]string `json:"metadata"`
			AssistantOverrides struct {
				Metadata map[string]string `json:"metadata"`
			} `json:"assistantOverrides"`
		} `json:"call"`
	} `json:"message"`
}

// ParseServerMessage extracts the session id and event from a webhook body.
// ok is false for message types the controller does not care about.
func ParseServerMessage(body []byte) (sessionID string, ev Event, ok bool, err error) {
	var msg serverMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return "", Event{}, false, fmt.Errorf("decode server message: %w", err)
	}
	m := msg.Message

	sessionID = m.Call.Metadata["sessionId"]
	if sessionID == "" {
		sessionID = m.Call.AssistantOverrides.Metadata["sessionId"]
	}

	switch m.Type {
	case "transcript":
		ev = Event{
			Type:  EventTranscript,
			Role:  normaliseRole(m.Role),
			Text:  strings.TrimSpace(m.Transcript),
			Final: m.TranscriptType == "final",
		}
	case "status-update":
		switch m.Status {
		case "in-progress":
			ev = Event{Type: EventCallStart}
		case "ended":
			ev = Event{Type: EventCallEnd}
		default:
			return sessionID, Event{}, false, nil
		}
	case "speech-update":
		switch m.Status {
		case "started":
			ev = Event{Type: EventSpeechStart, Role: normaliseRole(m.Role)}
		case "stopped":
			ev = Event{Type: EventSpeechEnd, Role: normaliseRole(m.Role)}
		default:
			return sessionID, Event{}, false, nil
		}
	case "end-of-call-report":
		ev = Event{Type: EventCallEnd}
	default:
		return sessionID, Event{}, false, nil
	}
	return sessionID, ev, true, nil
}

func normaliseRole(role string) string {
	switch strings.ToLower(role) {
	case "user", "customer":
		return RoleUser
	case "assistant", "bot":
		return RoleAssistant
	default:
		return ""
	}
}
