package persona

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"medvoice/internal/agent"
)

const suggestPrompt = `You match patients to AI doctors. Given the patient's notes and the list of available doctors, choose the doctors best suited to the symptoms described.
Respond with a JSON array of doctor ids only, most suitable first, for example [1,3]. Respond with nothing else.`

// Suggester picks personas that fit a patient's intake notes.
type Suggester struct {
	llm    agent.Client
	logger logrus.FieldLogger
}

func NewSuggester(llm agent.Client, logger logrus.FieldLogger) *Suggester {
	return &Suggester{llm: llm, logger: logger}
}

type candidate struct {
	ID          int    `json:"id"`
	Specialist  string `json:"specialist"`
	Description string `json:"description"`
}

// Suggest never fails: any upstream problem or empty answer yields the general physician.
func (s *Suggester) Suggest(ctx context.Context, notes string) []Persona {
	notes = strings.TrimSpace(notes)
	if notes == "" || !s.llm.Configured() {
		return fallbackSuggestion()
	}

	list := make([]candidate, 0, len(catalog))
	for _, p := range catalog {
		list = append(list, candidate{ID: p.ID, Specialist: p.Specialist, Description: p.Description})
	}
	listJSON, err := json.Marshal(list)
	if err != nil {
		return fallbackSuggestion()
	}

	raw, err := s.llm.Complete(ctx, suggestPrompt, "Patient notes: "+notes+"\nDoctors: "+string(listJSON))
	if err != nil {
		s.logger.WithError(err).Warn("persona suggestion failed")
		return fallbackSuggestion()
	}
	ids, err := parseIDs(raw)
	if err != nil {
		s.logger.WithError(err).Warn("persona suggestion unparseable")
		return fallbackSuggestion()
	}

	seen := map[int]bool{}
	var out []Persona
	for _, id := range ids {
		p, ok := ByID(id)
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, p)
	}
	if len(out) == 0 {
		return fallbackSuggestion()
	}
	return out
}

// parseIDs accepts either [1,2] or [{"id":1},...].
func parseIDs(raw string) ([]int, error) {
	body := []byte(agent.StripCodeFence(raw))

	var ids []int
	if err := json.Unmarshal(body, &ids); err == nil {
		return ids, nil
	}
	var objs []struct {
		ID int `json:"id"`
	}
	if err := json.Unmarshal(body, &objs); err != nil {
		return nil, fmt.Errorf("decode suggestion: %w", err)
	}
	for _, o := range objs {
		ids = append(ids, o.ID)
	}
	return ids, nil
}

func fallbackSuggestion() []Persona {
	gp, _ := ByID(GeneralPhysicianID)
	return []Persona{gp}
}
