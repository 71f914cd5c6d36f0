package report

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvoice/internal/auth"
	"medvoice/internal/consultation"
	"medvoice/internal/persona"
)

type fakeSessions map[string]consultation.Session

func (f fakeSessions) Get(ctx context.Context, ownerEmail, sessionID string) (*consultation.Session, error) {
	s, ok := f[sessionID]
	if !ok || s.CreatedBy != ownerEmail {
		return nil, consultation.ErrNotFound
	}
	return &s, nil
}

func newReportRouter(t *testing.T, svc Service, sessions SessionReader, fonts []string) http.Handler {
	t.Helper()
	logger, _ := test.NewNullLogger()
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx := auth.WithIdentity(req.Context(), auth.Identity{Email: "ann@example.com"})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	RegisterRoutes(r, NewHandler(svc, sessions, NewRenderer(fonts), logger))
	return r
}

func post(h http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/reports", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDeriveHandler(t *testing.T) {
	gp, _ := persona.ByID(persona.GeneralPhysicianID)
	sessions := fakeSessions{
		"mine":   {SessionID: "mine", CreatedBy: "ann@example.com", Persona: gp},
		"theirs": {SessionID: "theirs", CreatedBy: "bob@example.com", Persona: gp},
	}
	store := newFakeStore()
	llm := &fakeLLM{configured: true, reply: `{"summary":"Headache for two days.","symptoms":["headache"]}`}
	h := newReportRouter(t, newTestService(llm, store), sessions, nil)

	assert.Equal(t, http.StatusBadRequest, post(h, `{"transcript":[]}`).Code)
	assert.Equal(t, http.StatusNotFound, post(h, `{"sessionId":"theirs"}`).Code)
	assert.Empty(t, store.reports)

	rec := post(h, `{"sessionId":"mine","transcript":[{"role":"user","text":"headache"}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"summary":"Headache for two days."`)
	assert.Contains(t, llm.user, gp.Specialist)
	assert.Len(t, store.turns["mine"], 1)
}

func TestDeriveHandlerNotConfigured(t *testing.T) {
	sessions := fakeSessions{"mine": {SessionID: "mine", CreatedBy: "ann@example.com"}}
	h := newReportRouter(t, newTestService(&fakeLLM{}, newFakeStore()), sessions, nil)

	rec := post(h, `{"sessionId":"mine"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "not configured")
}

func TestPDFHandler(t *testing.T) {
	withReport := sampleSession()
	withReport.SessionID = "done"
	withReport.CreatedBy = "ann@example.com"
	sessions := fakeSessions{
		"pending": {SessionID: "pending", CreatedBy: "ann@example.com"},
		"done":    withReport,
	}
	h := newReportRouter(t, newTestService(&fakeLLM{}, newFakeStore()), sessions, []string{"/nonexistent.ttf"})

	get := func(target string) int {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		return rec.Code
	}
	assert.Equal(t, http.StatusNotFound, get("/reports/unknown/pdf"))
	assert.Equal(t, http.StatusNotFound, get("/reports/pending/pdf"))
	assert.Equal(t, http.StatusInternalServerError, get("/reports/done/pdf"))
}
