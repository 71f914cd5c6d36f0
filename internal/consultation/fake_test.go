package consultation

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"medvoice/internal/auth"
	"medvoice/internal/persona"
	"medvoice/internal/user"
)

// memRepo mirrors the postgres repository semantics in memory.
type memRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[string]*Session
}

func newMemRepo() *memRepo {
	return &memRepo{rows: map[string]*Session{}}
}

func (m *memRepo) Create(ctx context.Context, ownerEmail, notes string, p persona.Persona) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s := &Session{
		ID:           m.nextID,
		SessionID:    uuid.New().String(),
		Notes:        notes,
		Persona:      p,
		Conversation: []Turn{},
		CreatedBy:    ownerEmail,
		CreatedOn:    fmt.Sprintf("2026-01-01T00:00:%02dZ", m.nextID),
	}
	if _, dup := m.rows[s.SessionID]; dup {
		return nil, ErrConflict
	}
	m.rows[s.SessionID] = s
	cp := *s
	return &cp, nil
}

func (m *memRepo) ListByOwner(ctx context.Context, ownerEmail string) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, s := range m.rows {
		if s.CreatedBy == ownerEmail {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memRepo) GetBySessionID(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) UpdateReport(ctx context.Context, sessionID string, report Report, transcript []Turn) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	rep := report
	s.Report = &rep
	s.Conversation = append([]Turn{}, transcript...)
	cp := *s
	return &cp, nil
}

func (m *memRepo) Delete(ctx context.Context, sessionID, ownerEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.rows[sessionID]
	if !ok || s.CreatedBy != ownerEmail {
		return ErrNotFound
	}
	delete(m.rows, sessionID)
	return nil
}

func (m *memRepo) CountReported(ctx context.Context, ownerEmail string) (int, error) {
	list, _ := m.ListByOwner(ctx, ownerEmail)
	return len(Reported(list)), nil
}

type allowAll struct{}

func (allowAll) Authorize(context.Context, auth.Identity, persona.Persona) error { return nil }

type authorizerFunc func(ctx context.Context, id auth.Identity, p persona.Persona) error

func (f authorizerFunc) Authorize(ctx context.Context, id auth.Identity, p persona.Persona) error {
	return f(ctx, id, p)
}

type ensuredUsers struct {
	mu     sync.Mutex
	emails []string
}

func (e *ensuredUsers) EnsureUser(ctx context.Context, id auth.Identity) (*user.User, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.emails = append(e.emails, id.Email)
	return &user.User{Email: id.Email}, nil
}
