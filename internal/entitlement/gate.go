package entitlement

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/persona"
)

// FreeConsultationLimit is the number of reported consultations a free identity may hold.
const FreeConsultationLimit = 5

type Plan string

const (
	PlanFree Plan = "free"
	PlanPaid Plan = "paid"
)

var (
	ErrUnavailable     = errors.New("entitlement check unavailable, please retry")
	ErrQuotaExceeded   = errors.New("free consultation limit reached")
	ErrUpgradeRequired = errors.New("this specialist requires a paid plan")
)

var paidPlans = map[string]bool{"plus": true, "pro": true}

// ReportedCounter counts an owner's sessions that carry a well-formed report.
type ReportedCounter interface {
	CountReported(ctx context.Context, ownerEmail string) (int, error)
}

type Entitlement struct {
	Plan             Plan `json:"plan"`
	ReportedSessions int  `json:"reportedSessions"`
	Limit            *int `json:"limit"`
	CanStart         bool `json:"canStart"`
}

type Gate struct {
	counter ReportedCounter
	logger  logrus.FieldLogger
}

func NewGate(counter ReportedCounter, logger logrus.FieldLogger) *Gate {
	return &Gate{counter: counter, logger: logger}
}

// PlanFor maps the identity provider's plan claim ("plus", "u:pro", ...) to a tier.
func PlanFor(id auth.Identity) Plan {
	plan := strings.ToLower(strings.TrimSpace(id.Plan))
	if i := strings.IndexByte(plan, ':'); i >= 0 {
		plan = plan[i+1:]
	}
	if paidPlans[plan] {
		return PlanPaid
	}
	return PlanFree
}

// Evaluate fails closed for free identities: if the count cannot be read, ErrUnavailable is returned.
func (g *Gate) Evaluate(ctx context.Context, id auth.Identity) (Entitlement, error) {
	plan := PlanFor(id)
	count, err := g.counter.CountReported(ctx, id.Email)

	if plan == PlanPaid {
		if err != nil {
			g.logger.WithError(err).WithField("email", id.Email).Warn("reported count unavailable for paid identity")
			count = 0
		}
		return Entitlement{Plan: PlanPaid, ReportedSessions: count, CanStart: true}, nil
	}

	if err != nil {
		return Entitlement{}, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	limit := FreeConsultationLimit
	return Entitlement{
		Plan:             PlanFree,
		ReportedSessions: count,
		Limit:            &limit,
		CanStart:         count < limit,
	}, nil
}

func CanUsePersona(id auth.Identity, p persona.Persona) error {
	if p.SubscriptionRequired && PlanFor(id) != PlanPaid {
		return ErrUpgradeRequired
	}
	return nil
}

// Authorize decides whether id may start a new consultation with p.
func (g *Gate) Authorize(ctx context.Context, id auth.Identity, p persona.Persona) error {
	if err := CanUsePersona(id, p); err != nil {
		return err
	}
	ent, err := g.Evaluate(ctx, id)
	if err != nil {
		return err
	}
	if !ent.CanStart {
		return ErrQuotaExceeded
	}
	return nil
}
