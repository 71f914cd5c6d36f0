package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"medvoice/internal/agent"
	"medvoice/internal/consultation"
	"medvoice/internal/persona"
)

// ErrNotConfigured means no completion endpoint is available; nothing is written.
var ErrNotConfigured = agent.ErrNotConfigured

const (
	FallbackSummary        = "Voice consultation session completed. Please review the conversation for details."
	fallbackComplaint      = "Medical consultation completed"
	fallbackRecommendation = "Consult with a healthcare professional for proper diagnosis"
	notSpecified           = "Not specified"
	anonymous              = "Anonymous"
)

const derivePrompt = `You are an AI Medical Voice Agent that just finished a voice conversation with a user. Based on the doctor AI agent info and the conversation between the AI medical agent and the user, generate a structured report with the following fields:
1. sessionId: the session identifier
2. agent: the medical specialist name (e.g., "General Physician AI")
3. user: name of the patient or "Anonymous" if not provided
4. timestamp: current date and time in ISO format
5. chiefComplaint: one-sentence summary of the main health concern
6. summary: a 2-3 sentence summary of the conversation, symptoms, and recommendations
7. symptoms: list of symptoms mentioned by the user
8. duration: how long the user has experienced the symptoms
9. severity: one of mild, moderate, severe or unspecified
10. medicationsMentioned: list of any medicines mentioned
11. recommendations: list of AI suggestions (e.g., rest, see a doctor)
Return the result in this JSON format:
{
"sessionId": "string",
"agent": "string",
"user": "string",
"timestamp": "ISO Date string",
"chiefComplaint": "string",
"summary": "string",
"symptoms": ["symptom1","symptom2"],
"duration": "string",
"severity": "string",
"medicationsMentioned": ["med1","med2"],
"recommendations": ["rec1","rec2"]
}
Respond with the JSON object only.`

// SessionStore persists a derived report together with the transcript it came from.
type SessionStore interface {
	SaveReport(ctx context.Context, sessionID string, report consultation.Report, transcript []consultation.Turn) (*consultation.Session, error)
}

// Notifier forwards a message, optionally with a document, to the care team.
type Notifier interface {
	Notify(ctx context.Context, text string, document []byte, fileName string) error
}

type Request struct {
	SessionID  string
	Persona    persona.Persona
	Transcript []consultation.Turn
}

type Result struct {
	Report   consultation.Report
	Session  *consultation.Session
	Fallback bool
}

type Service interface {
	Derive(ctx context.Context, req Request) (*Result, error)
}

type Option func(*service)

// WithNotifier escalates severe reports through n.
func WithNotifier(n Notifier) Option {
	return func(s *service) { s.notifier = n }
}

func WithRenderer(r *Renderer) Option {
	return func(s *service) { s.renderer = r }
}

func withClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

type service struct {
	llm      agent.Client
	store    SessionStore
	notifier Notifier
	renderer *Renderer
	logger   logrus.FieldLogger
	now      func() time.Time
}

func NewService(llm agent.Client, store SessionStore, logger logrus.FieldLogger, opts ...Option) Service {
	s := &service{llm: llm, store: store, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *service) Derive(ctx context.Context, req Request) (*Result, error) {
	if !s.llm.Configured() {
		return nil, ErrNotConfigured
	}
	log := s.logger.WithFields(logrus.Fields{"session_id": req.SessionID, "turns": len(req.Transcript)})

	var (
		rep      consultation.Report
		fallback bool
	)
	if len(req.Transcript) == 0 {
		rep, fallback = s.fallback(req), true
	} else {
		derived, err := s.complete(ctx, req)
		switch {
		case errors.Is(err, agent.ErrNotConfigured):
			return nil, ErrNotConfigured
		case err != nil:
			log.WithError(err).Warn("report derivation failed, using fallback")
			rep, fallback = s.fallback(req), true
		default:
			rep = derived
		}
	}

	sess, err := s.store.SaveReport(ctx, req.SessionID, rep, req.Transcript)
	if err != nil {
		return nil, err
	}
	log.WithFields(logrus.Fields{"severity": rep.Severity, "fallback": fallback}).Info("report saved")

	if rep.Severity == consultation.SeveritySevere {
		s.escalate(ctx, sess, log)
	}
	return &Result{Report: rep, Session: sess, Fallback: fallback}, nil
}

func (s *service) complete(ctx context.Context, req Request) (consultation.Report, error) {
	personaJSON, err := json.Marshal(req.Persona)
	if err != nil {
		return consultation.Report{}, err
	}
	transcriptJSON, err := json.Marshal(req.Transcript)
	if err != nil {
		return consultation.Report{}, err
	}
	content := "AI Doctor Agent Info:" + string(personaJSON) + ", Conversation:" + string(transcriptJSON)

	raw, err := s.llm.Complete(ctx, derivePrompt, content)
	if err != nil {
		return consultation.Report{}, err
	}
	return s.parse(raw, req)
}

type modelReport struct {
	Agent                string   `json:"agent"`
	User                 string   `json:"user"`
	Timestamp            string   `json:"timestamp"`
	ChiefComplaint       string   `json:"chiefComplaint"`
	Summary              string   `json:"summary"`
	Symptoms             []string `json:"symptoms"`
	Duration             string   `json:"duration"`
	Severity             string   `json:"severity"`
	MedicationsMentioned []string `json:"medicationsMentioned"`
	Recommendations      []string `json:"recommendations"`
}

// parse normalises model output into the fixed report schema.
func (s *service) parse(raw string, req Request) (consultation.Report, error) {
	var m modelReport
	if err := json.Unmarshal([]byte(agent.StripCodeFence(raw)), &m); err != nil {
		return consultation.Report{}, fmt.Errorf("decode model report: %w", err)
	}
	if strings.TrimSpace(m.Summary) == "" {
		return consultation.Report{}, errors.New("model report has no summary")
	}

	return consultation.Report{
		SessionID:            req.SessionID,
		Agent:                orDefault(m.Agent, agentName(req.Persona)),
		User:                 orDefault(m.User, anonymous),
		Timestamp:            s.timestamp(m.Timestamp),
		ChiefComplaint:       orDefault(m.ChiefComplaint, notSpecified),
		Summary:              strings.TrimSpace(m.Summary),
		Symptoms:             cleanList(m.Symptoms),
		Duration:             orDefault(m.Duration, notSpecified),
		Severity:             consultation.ParseSeverity(m.Severity),
		MedicationsMentioned: cleanList(m.MedicationsMentioned),
		Recommendations:      cleanList(m.Recommendations),
	}, nil
}

func (s *service) fallback(req Request) consultation.Report {
	complaint := fallbackComplaint
	if n := len(req.Transcript); n > 0 {
		complaint = fmt.Sprintf("%s (%d conversation turns)", fallbackComplaint, n)
	}
	return consultation.Report{
		SessionID:            req.SessionID,
		Agent:                agentName(req.Persona),
		User:                 anonymous,
		Timestamp:            s.now().UTC().Format(time.RFC3339),
		ChiefComplaint:       complaint,
		Summary:              FallbackSummary,
		Symptoms:             []string{},
		Duration:             notSpecified,
		Severity:             consultation.SeverityUnspecified,
		MedicationsMentioned: []string{},
		Recommendations:      []string{fallbackRecommendation},
	}
}

func (s *service) escalate(ctx context.Context, sess *consultation.Session, log logrus.FieldLogger) {
	if s.notifier == nil || sess == nil || sess.Report == nil {
		return
	}
	rep := sess.Report
	text := fmt.Sprintf("Severe consultation report\nSession: %s\nPatient: %s\nComplaint: %s\nSummary: %s",
		sess.SessionID, rep.User, rep.ChiefComplaint, rep.Summary)

	var doc []byte
	if s.renderer != nil {
		pdf, err := s.renderer.Render(*sess)
		if err != nil {
			log.WithError(err).Warn("render report pdf for escalation")
		} else {
			doc = pdf
		}
	}
	if err := s.notifier.Notify(ctx, text, doc, FileName(sess.SessionID)); err != nil {
		log.WithError(err).Warn("care team notification failed")
		return
	}
	log.Info("severe report forwarded to care team")
}

func (s *service) timestamp(v string) string {
	if t, err := time.Parse(time.RFC3339, strings.TrimSpace(v)); err == nil {
		return t.UTC().Format(time.RFC3339)
	}
	return s.now().UTC().Format(time.RFC3339)
}

func agentName(p persona.Persona) string {
	if p.Specialist == "" {
		return "AI Medical Assistant"
	}
	return p.Specialist + " AI"
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return def
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
