package consultation

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvoice/internal/auth"
	"medvoice/internal/entitlement"
	"medvoice/internal/persona"
)

func newTestService(gate Authorizer) (Service, *memRepo, *ensuredUsers) {
	logger, _ := test.NewNullLogger()
	repo := newMemRepo()
	users := &ensuredUsers{}
	return NewService(repo, gate, users, logger), repo, users
}

var ann = auth.Identity{Email: "ann@example.com", Name: "Ann"}
var bob = auth.Identity{Email: "bob@example.com", Name: "Bob"}

func TestCreateAssignsUniqueIDAndOwner(t *testing.T) {
	svc, _, users := newTestService(allowAll{})
	ctx := context.Background()

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		s, err := svc.Create(ctx, ann, " headache ", persona.GeneralPhysicianID)
		require.NoError(t, err)
		assert.Equal(t, ann.Email, s.CreatedBy)
		assert.Equal(t, "headache", s.Notes)
		assert.Equal(t, "General Physician", s.Persona.Specialist)
		assert.False(t, seen[s.SessionID], "duplicate session id %s", s.SessionID)
		seen[s.SessionID] = true
	}
	assert.Len(t, users.emails, 20)
}

func TestCreateUnknownPersona(t *testing.T) {
	svc, _, _ := newTestService(allowAll{})
	_, err := svc.Create(context.Background(), ann, "", 999)
	assert.ErrorIs(t, err, ErrUnknownPersona)
}

func TestCreateBlockedByGate(t *testing.T) {
	svc, repo, _ := newTestService(authorizerFunc(func(context.Context, auth.Identity, persona.Persona) error {
		return entitlement.ErrQuotaExceeded
	}))
	_, err := svc.Create(context.Background(), ann, "", persona.GeneralPhysicianID)
	assert.ErrorIs(t, err, entitlement.ErrQuotaExceeded)
	assert.Empty(t, repo.rows)
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	svc, _, _ := newTestService(allowAll{})
	ctx := context.Background()
	s, err := svc.Create(ctx, bob, "", persona.GeneralPhysicianID)
	require.NoError(t, err)

	assert.ErrorIs(t, svc.Delete(ctx, ann.Email, s.SessionID), ErrNotFound)
	assert.NoError(t, svc.Delete(ctx, bob.Email, s.SessionID))
	assert.ErrorIs(t, svc.Delete(ctx, bob.Email, s.SessionID), ErrNotFound)
}

func TestGetHidesForeignSessions(t *testing.T) {
	svc, _, _ := newTestService(allowAll{})
	ctx := context.Background()
	s, err := svc.Create(ctx, bob, "", persona.GeneralPhysicianID)
	require.NoError(t, err)

	_, err = svc.Get(ctx, ann.Email, s.SessionID)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := svc.Get(ctx, bob.Email, s.SessionID)
	require.NoError(t, err)
	assert.Equal(t, s.SessionID, got.SessionID)
}

func TestHistoryOnlyListsReportedSessions(t *testing.T) {
	svc, _, _ := newTestService(allowAll{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Create(ctx, ann, "", persona.GeneralPhysicianID)
		require.NoError(t, err)
	}
	history, err := svc.History(ctx, ann.Email)
	require.NoError(t, err)
	assert.Empty(t, history)

	all, err := svc.List(ctx, ann.Email)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].ID, all[1].ID)

	_, err = svc.SaveReport(ctx, all[1].SessionID, Report{Summary: "Mild headache."}, nil)
	require.NoError(t, err)
	_, err = svc.SaveReport(ctx, all[2].SessionID, Report{Summary: "   "}, nil)
	require.NoError(t, err)

	history, err = svc.History(ctx, ann.Email)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, all[1].SessionID, history[0].SessionID)
}

func TestWellFormedIgnoresBlankSummaries(t *testing.T) {
	var nilReport *Report
	assert.False(t, nilReport.WellFormed())
	for _, s := range []string{"", "   ", "\n", "\t\r\n", "\v\f "} {
		assert.False(t, (&Report{Summary: s}).WellFormed(), "%q", s)
	}
	assert.True(t, (&Report{Summary: "\nMild headache.\n"}).WellFormed())
}

func TestParseSeverity(t *testing.T) {
	assert.Equal(t, SeverityMild, ParseSeverity("Mild"))
	assert.Equal(t, SeverityModerate, ParseSeverity("moderate to severe"))
	assert.Equal(t, SeveritySevere, ParseSeverity("SEVERE"))
	assert.Equal(t, SeverityUnspecified, ParseSeverity("Not specified"))
	assert.Equal(t, SeverityUnspecified, ParseSeverity(""))
}
