package call

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus/hooks/test"

	"medvoice/internal/consultation"
	"medvoice/internal/persona"
	"medvoice/internal/platform/vapi"
	"medvoice/internal/report"
)

type fakeChannel struct {
	configured bool
	startErr   error
	block      chan struct{}

	mu      sync.Mutex
	starts  []vapi.StartCallRequest
	stopped []string
	stopCh  chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{configured: true, stopCh: make(chan struct{}, 8)}
}

func (f *fakeChannel) Configured() bool { return f.configured }

func (f *fakeChannel) StartWebCall(ctx context.Context, req vapi.StartCallRequest) (*vapi.Call, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts = append(f.starts, req)
	if f.startErr != nil {
		return nil, f.startErr
	}
	return &vapi.Call{
		ID:         "call-1",
		WebCallURL: "https://room.example/call-1",
		Monitor:    vapi.Monitor{ControlURL: "https://control.example/call-1"},
	}, nil
}

func (f *fakeChannel) EndCall(ctx context.Context, controlURL string) error {
	f.mu.Lock()
	f.stopped = append(f.stopped, controlURL)
	f.mu.Unlock()
	f.stopCh <- struct{}{}
	return nil
}

func (f *fakeChannel) stopCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.stopped)
}

type fakeDeriver struct {
	err   error
	block chan struct{}

	mu    sync.Mutex
	calls []report.Request
}

func (f *fakeDeriver) Derive(ctx context.Context, req report.Request) (*report.Result, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	rep := consultation.Report{SessionID: req.SessionID, Summary: "derived", Symptoms: []string{"headache"}}
	return &report.Result{
		Report:  rep,
		Session: &consultation.Session{SessionID: req.SessionID, Report: &rep, Conversation: req.Transcript},
	}, nil
}

func (f *fakeDeriver) requests() []report.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]report.Request{}, f.calls...)
}

type fakeSessions map[string]consultation.Session

func (f fakeSessions) Get(ctx context.Context, ownerEmail, sessionID string) (*consultation.Session, error) {
	s, ok := f[sessionID]
	if !ok || s.CreatedBy != ownerEmail {
		return nil, consultation.ErrNotFound
	}
	return &s, nil
}

func testSession() consultation.Session {
	gp, _ := persona.ByID(persona.GeneralPhysicianID)
	return consultation.Session{
		ID:           1,
		SessionID:    "s1",
		Notes:        "headache",
		Persona:      gp,
		Conversation: []consultation.Turn{},
		CreatedBy:    "ann@example.com",
	}
}

func testDeps(ch *fakeChannel, d *fakeDeriver, drain time.Duration) Deps {
	logger, _ := test.NewNullLogger()
	return Deps{
		Channel:     ch,
		Deriver:     d,
		Sessions:    fakeSessions{"s1": testSession()},
		DrainWindow: drain,
		Logger:      logger,
	}
}

var errUpstream = errors.New("upstream down")
