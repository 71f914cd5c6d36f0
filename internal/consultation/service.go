package consultation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"medvoice/internal/auth"
	"medvoice/internal/persona"
	"medvoice/internal/user"
)

// Authorizer decides whether an identity may open a new consultation with a persona.
type Authorizer interface {
	Authorize(ctx context.Context, id auth.Identity, p persona.Persona) error
}

// UserEnsurer guarantees the owning user row exists before a session references it.
type UserEnsurer interface {
	EnsureUser(ctx context.Context, id auth.Identity) (*user.User, error)
}

type Service interface {
	Create(ctx context.Context, id auth.Identity, notes string, personaID int) (*Session, error)
	List(ctx context.Context, ownerEmail string) ([]Session, error)
	History(ctx context.Context, ownerEmail string) ([]Session, error)
	Get(ctx context.Context, ownerEmail, sessionID string) (*Session, error)
	Delete(ctx context.Context, ownerEmail, sessionID string) error
	SaveReport(ctx context.Context, sessionID string, report Report, transcript []Turn) (*Session, error)
}

type service struct {
	repo   Repository
	gate   Authorizer
	users  UserEnsurer
	logger logrus.FieldLogger
}

func NewService(repo Repository, gate Authorizer, users UserEnsurer, logger logrus.FieldLogger) Service {
	return &service{repo: repo, gate: gate, users: users, logger: logger}
}

func (s *service) Create(ctx context.Context, id auth.Identity, notes string, personaID int) (*Session, error) {
	p, ok := persona.ByID(personaID)
	if !ok {
		return nil, ErrUnknownPersona
	}
	if err := s.gate.Authorize(ctx, id, p); err != nil {
		return nil, err
	}
	if _, err := s.users.EnsureUser(ctx, id); err != nil {
		return nil, fmt.Errorf("ensure owner: %w", err)
	}

	sess, err := s.repo.Create(ctx, id.Email, strings.TrimSpace(notes), p)
	if err != nil {
		return nil, err
	}
	s.logger.WithFields(logrus.Fields{
		"session_id": sess.SessionID,
		"persona":    p.Specialist,
	}).Info("consultation session created")
	return sess, nil
}

func (s *service) List(ctx context.Context, ownerEmail string) ([]Session, error) {
	return s.repo.ListByOwner(ctx, ownerEmail)
}

// History is the owner's sessions that produced a well-formed report, newest first.
func (s *service) History(ctx context.Context, ownerEmail string) ([]Session, error) {
	all, err := s.repo.ListByOwner(ctx, ownerEmail)
	if err != nil {
		return nil, err
	}
	return Reported(all), nil
}

// Get hides sessions owned by someone else behind ErrNotFound.
func (s *service) Get(ctx context.Context, ownerEmail, sessionID string) (*Session, error) {
	sess, err := s.repo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CreatedBy != ownerEmail {
		return nil, ErrNotFound
	}
	return sess, nil
}

func (s *service) Delete(ctx context.Context, ownerEmail, sessionID string) error {
	return s.repo.Delete(ctx, sessionID, ownerEmail)
}

// SaveReport overwrites report and transcript; callers must have authorised the session already.
func (s *service) SaveReport(ctx context.Context, sessionID string, report Report, transcript []Turn) (*Session, error) {
	return s.repo.UpdateReport(ctx, sessionID, report, transcript)
}
