// Package call drives one voice consultation from channel start to report derivation.
package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"medvoice/internal/consultation"
	"medvoice/internal/platform/vapi"
	"medvoice/internal/report"
)

type State string

const (
	StateIdle            State = "idle"
	StateAwaitingChannel State = "awaiting_channel"
	StateConnected       State = "connected"
	StateEnded           State = "ended"
)

var (
	ErrBusy                 = errors.New("call action already in progress")
	ErrChannelNotConfigured = errors.New("voice channel is not configured")
	ErrChannelStart         = errors.New("voice channel could not be started")
	ErrNotStarted           = errors.New("call has not been started")
	ErrEnded                = errors.New("call has already ended")
)

// DerivationNotice is attached to an outcome whose report could not be derived.
const DerivationNotice = "Report generation failed, but the session was saved"

// Channel is the hosted voice transport.
type Channel interface {
	Configured() bool
	StartWebCall(ctx context.Context, req vapi.StartCallRequest) (*vapi.Call, error)
	EndCall(ctx context.Context, controlURL string) error
}

type Deriver interface {
	Derive(ctx context.Context, req report.Request) (*report.Result, error)
}

// SessionReader re-reads the persisted row after the call ends.
type SessionReader interface {
	Get(ctx context.Context, ownerEmail, sessionID string) (*consultation.Session, error)
}

type Snapshot struct {
	SessionID   string              `json:"sessionId"`
	State       State               `json:"state"`
	Transcript  []consultation.Turn `json:"transcript"`
	Live        *consultation.Turn  `json:"live,omitempty"`
	CurrentRole string              `json:"currentRole,omitempty"`
	CallID      string              `json:"callId,omitempty"`
	WebCallURL  string              `json:"webCallUrl,omitempty"`
}

// Outcome is what ending a call produced. Notice is set when derivation failed.
type Outcome struct {
	Session *consultation.Session `json:"session"`
	Report  *consultation.Report  `json:"report"`
	Notice  string                `json:"notice,omitempty"`
}

type Deps struct {
	Channel     Channel
	Deriver     Deriver
	Sessions    SessionReader
	DrainWindow time.Duration
	Logger      logrus.FieldLogger
}

// Controller owns the lifecycle of a single session's call. Ended is terminal.
type Controller struct {
	deps    Deps
	session consultation.Session
	owner   string
	logger  logrus.FieldLogger

	mu          sync.Mutex
	state       State
	starting    bool
	ending      bool
	hungUp      bool
	call        *vapi.Call
	transcript  []consultation.Turn
	live        *consultation.Turn
	currentRole string
	outcome     *Outcome
	createdAt   time.Time
	endedAt     time.Time
	done        chan struct{}
}

func NewController(sess consultation.Session, deps Deps) *Controller {
	return &Controller{
		deps:       deps,
		session:    sess,
		owner:      sess.CreatedBy,
		logger:     deps.Logger.WithField("session_id", sess.SessionID),
		state:      StateIdle,
		transcript: []consultation.Turn{},
		createdAt:  time.Now(),
		done:       make(chan struct{}),
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := Snapshot{
		SessionID:   c.session.SessionID,
		State:       c.state,
		Transcript:  append([]consultation.Turn{}, c.transcript...),
		CurrentRole: c.currentRole,
	}
	if c.live != nil {
		live := *c.live
		s.Live = &live
	}
	if c.call != nil {
		s.CallID = c.call.ID
		s.WebCallURL = c.call.WebCallURL
	}
	return s
}

// Start opens the voice channel for the session's persona. On failure the controller is idle again.
func (c *Controller) Start(ctx context.Context) (Snapshot, error) {
	if !c.deps.Channel.Configured() {
		return c.Snapshot(), ErrChannelNotConfigured
	}

	c.mu.Lock()
	switch {
	case c.starting:
		c.mu.Unlock()
		return Snapshot{}, ErrBusy
	case c.state == StateEnded:
		c.mu.Unlock()
		return Snapshot{}, ErrEnded
	case c.state != StateIdle:
		snap := c.snapshotLocked()
		c.mu.Unlock()
		return snap, ErrBusy
	}
	c.starting = true
	c.state = StateAwaitingChannel
	c.mu.Unlock()

	handle, err := c.deps.Channel.StartWebCall(ctx, startRequest(c.session))

	c.mu.Lock()
	c.starting = false
	if err != nil {
		if c.state == StateAwaitingChannel {
			c.state = StateIdle
		}
		c.mu.Unlock()
		c.logger.WithError(err).Warn("voice channel start failed")
		return Snapshot{}, fmt.Errorf("%w: %v", ErrChannelStart, err)
	}
	if c.state == StateEnded {
		// closed while the channel was being opened
		c.mu.Unlock()
		c.stopChannel(ctx, handle)
		return Snapshot{}, ErrEnded
	}
	c.call = handle
	snap := c.snapshotLocked()
	c.mu.Unlock()
	return snap, nil
}

// HandleEvent folds one voice-service event into the call state.
func (c *Controller) HandleEvent(ev Event) {
	c.mu.Lock()
	if c.state == StateIdle || c.state == StateEnded {
		c.mu.Unlock()
		return
	}

	switch ev.Type {
	case EventCallStart:
		if c.state == StateAwaitingChannel {
			c.state = StateConnected
		}
	case EventSpeechStart:
		c.currentRole = ev.Role
		if c.currentRole == "" {
			c.currentRole = RoleAssistant
		}
	case EventSpeechEnd:
		if ev.Role == "" || ev.Role == RoleAssistant {
			c.currentRole = RoleUser
		}
	case EventTranscript:
		role := ev.Role
		if role == "" {
			role = c.currentRole
		}
		turn := consultation.Turn{Role: role, Text: ev.Text}
		if ev.Final {
			c.transcript = append(c.transcript, turn)
			c.live = nil
			c.currentRole = ""
		} else {
			c.live = &turn
			c.currentRole = role
		}
	case EventCallEnd:
		if c.ending {
			break
		}
		c.ending = true
		c.hungUp = true
		c.mu.Unlock()
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			c.finish(ctx, true)
		}()
		return
	}
	c.mu.Unlock()
}

// End stops the channel, drains late transcripts, then derives and persists the report.
// Derivation failures are reported through Outcome.Notice, never as an error.
// If the voice service already hung up, End waits for that derivation instead.
func (c *Controller) End(ctx context.Context) (*Outcome, error) {
	c.mu.Lock()
	switch {
	case c.state == StateEnded && c.outcome != nil:
		out := c.outcome
		c.mu.Unlock()
		return out, nil
	case c.ending && c.hungUp:
		c.mu.Unlock()
		return c.Wait(ctx)
	case c.ending, c.starting:
		c.mu.Unlock()
		return nil, ErrBusy
	case c.state == StateIdle:
		c.mu.Unlock()
		return nil, ErrNotStarted
	case c.state == StateEnded:
		c.mu.Unlock()
		return nil, ErrEnded
	}
	c.ending = true
	c.mu.Unlock()

	return c.finish(context.WithoutCancel(ctx), false), nil
}

// Wait blocks until the controller reaches ended with an outcome, or ctx is done.
func (c *Controller) Wait(ctx context.Context) (*Outcome, error) {
	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.outcome, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Controller) finish(ctx context.Context, byChannel bool) *Outcome {
	c.mu.Lock()
	handle := c.call
	c.mu.Unlock()

	if !byChannel {
		c.stopChannel(ctx, handle)
	}
	if c.deps.DrainWindow > 0 {
		timer := time.NewTimer(c.deps.DrainWindow)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
		}
	}

	c.mu.Lock()
	transcript := append([]consultation.Turn{}, c.transcript...)
	c.state = StateEnded
	c.live = nil
	c.mu.Unlock()

	out := c.derive(ctx, transcript)

	c.mu.Lock()
	c.outcome = out
	c.ending = false
	c.endedAt = time.Now()
	c.mu.Unlock()
	close(c.done)
	return out
}

func (c *Controller) derive(ctx context.Context, transcript []consultation.Turn) *Outcome {
	res, err := c.deps.Deriver.Derive(ctx, report.Request{
		SessionID:  c.session.SessionID,
		Persona:    c.session.Persona,
		Transcript: transcript,
	})
	if err == nil {
		c.logger.WithField("turns", len(transcript)).Info("call ended, report derived")
		return &Outcome{Session: res.Session, Report: &res.Report}
	}

	c.logger.WithError(err).Warn("call ended without a report")
	out := &Outcome{Notice: DerivationNotice}
	latest, gerr := c.deps.Sessions.Get(ctx, c.owner, c.session.SessionID)
	if gerr != nil {
		c.logger.WithError(gerr).Warn("reload session after failed derivation")
		sess := c.session
		latest = &sess
	}
	out.Session = latest
	out.Report = latest.Report
	return out
}

// Close tears the call down without deriving a report.
func (c *Controller) Close(ctx context.Context) {
	c.mu.Lock()
	if c.state == StateEnded || c.ending {
		c.mu.Unlock()
		return
	}
	c.state = StateEnded
	c.live = nil
	c.endedAt = time.Now()
	handle := c.call
	c.mu.Unlock()

	c.stopChannel(ctx, handle)
	close(c.done)
	c.logger.Info("call closed without report")
}

func (c *Controller) endedSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endedAt, c.state == StateEnded && !c.endedAt.IsZero()
}

// idleSince reports when the controller was created if it never left idle.
func (c *Controller) idleSince() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.createdAt, c.state == StateIdle && !c.starting
}

func (c *Controller) stopChannel(ctx context.Context, handle *vapi.Call) {
	if handle == nil {
		return
	}
	if err := c.deps.Channel.EndCall(ctx, handle.Monitor.ControlURL); err != nil {
		c.logger.WithError(err).Warn("stop voice channel")
	}
}

func startRequest(sess consultation.Session) vapi.StartCallRequest {
	p := sess.Persona
	req := vapi.StartCallRequest{
		SessionID: sess.SessionID,
		FirstMessage: fmt.Sprintf("Hi, I'm %s, your %s AI. What brings you in today?",
			p.Name, p.Specialist),
		Variables: map[string]string{
			"agentPrompt": p.AgentPrompt,
			"specialist":  p.Specialist,
			"notes":       sess.Notes,
		},
	}
	if p.VoiceID != "" {
		req.Voice = &vapi.Voice{Provider: "playht", VoiceID: p.VoiceID}
	}
	return req
}
