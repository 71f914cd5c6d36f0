package call

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medvoice/internal/consultation"
)

func startedController(t *testing.T, ch *fakeChannel, d *fakeDeriver, drain time.Duration) *Controller {
	t.Helper()
	c := NewController(testSession(), testDeps(ch, d, drain))
	_, err := c.Start(context.Background())
	require.NoError(t, err)
	c.HandleEvent(Event{Type: EventCallStart})
	require.Equal(t, StateConnected, c.State())
	return c
}

func TestStartRequiresConfiguredChannel(t *testing.T) {
	ch := newFakeChannel()
	ch.configured = false
	c := NewController(testSession(), testDeps(ch, &fakeDeriver{}, 0))

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrChannelNotConfigured)
	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, ch.starts)
}

func TestStartFailureReturnsToIdle(t *testing.T) {
	ch := newFakeChannel()
	ch.startErr = errUpstream
	c := NewController(testSession(), testDeps(ch, &fakeDeriver{}, 0))

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrChannelStart)
	assert.Equal(t, StateIdle, c.State())

	ch.startErr = nil
	snap, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingChannel, snap.State)
	assert.Equal(t, "https://room.example/call-1", snap.WebCallURL)
}

func TestStartPassesPersona(t *testing.T) {
	ch := newFakeChannel()
	startedController(t, ch, &fakeDeriver{}, 0)

	require.Len(t, ch.starts, 1)
	req := ch.starts[0]
	assert.Equal(t, "s1", req.SessionID)
	assert.Contains(t, req.FirstMessage, "General Physician")
	assert.Equal(t, "headache", req.Variables["notes"])
	require.NotNil(t, req.Voice)
	assert.Equal(t, "will", req.Voice.VoiceID)
}

func TestDuplicateStartIsBusy(t *testing.T) {
	ch := newFakeChannel()
	ch.block = make(chan struct{})
	c := NewController(testSession(), testDeps(ch, &fakeDeriver{}, 0))

	errs := make(chan error, 1)
	go func() {
		_, err := c.Start(context.Background())
		errs <- err
	}()
	require.Eventually(t, func() bool { return c.State() == StateAwaitingChannel }, time.Second, time.Millisecond)

	_, err := c.Start(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(ch.block)
	assert.NoError(t, <-errs)
}

func TestTranscriptAccumulation(t *testing.T) {
	c := startedController(t, newFakeChannel(), &fakeDeriver{}, 0)

	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "head"})
	snap := c.Snapshot()
	require.NotNil(t, snap.Live)
	assert.Equal(t, consultation.Turn{Role: RoleUser, Text: "head"}, *snap.Live)
	assert.Empty(t, snap.Transcript)

	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "headache", Final: true})
	c.HandleEvent(Event{Type: EventSpeechStart})
	c.HandleEvent(Event{Type: EventTranscript, Text: "how long?", Final: true})

	snap = c.Snapshot()
	assert.Nil(t, snap.Live)
	assert.Equal(t, []consultation.Turn{
		{Role: RoleUser, Text: "headache"},
		{Role: RoleAssistant, Text: "how long?"},
	}, snap.Transcript)

	c.HandleEvent(Event{Type: EventSpeechEnd})
	assert.Equal(t, RoleUser, c.Snapshot().CurrentRole)
}

func TestEventsIgnoredBeforeStart(t *testing.T) {
	c := NewController(testSession(), testDeps(newFakeChannel(), &fakeDeriver{}, 0))
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "hi", Final: true})
	c.HandleEvent(Event{Type: EventCallStart})

	assert.Equal(t, StateIdle, c.State())
	assert.Empty(t, c.Snapshot().Transcript)
}

func TestEndDerivesReport(t *testing.T) {
	ch := newFakeChannel()
	d := &fakeDeriver{}
	c := startedController(t, ch, d, 0)
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "headache", Final: true})
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleAssistant, Text: "how long?", Final: true})

	out, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Empty(t, out.Notice)
	require.NotNil(t, out.Report)
	assert.Equal(t, []string{"headache"}, out.Report.Symptoms)
	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, []string{"https://control.example/call-1"}, ch.stopped)

	reqs := d.requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Transcript, 2)
	assert.Equal(t, "General Physician", reqs[0].Persona.Specialist)

	again, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Same(t, out, again)
	assert.Len(t, d.requests(), 1)
}

func TestEndWithEmptyTranscriptStillDerives(t *testing.T) {
	d := &fakeDeriver{}
	c := startedController(t, newFakeChannel(), d, 0)

	_, err := c.End(context.Background())
	require.NoError(t, err)
	require.Len(t, d.requests(), 1)
	assert.NotNil(t, d.requests()[0].Transcript)
	assert.Empty(t, d.requests()[0].Transcript)
}

func TestEndKeepsLateFinalsDuringDrain(t *testing.T) {
	ch := newFakeChannel()
	d := &fakeDeriver{}
	c := startedController(t, ch, d, 300*time.Millisecond)
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "headache", Final: true})

	done := make(chan *Outcome, 1)
	go func() {
		out, _ := c.End(context.Background())
		done <- out
	}()

	<-ch.stopCh
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleAssistant, Text: "how long?", Final: true})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("end did not return")
	}
	reqs := d.requests()
	require.Len(t, reqs, 1)
	assert.Len(t, reqs[0].Transcript, 2)
}

func TestDerivationFailureIsANotice(t *testing.T) {
	d := &fakeDeriver{err: errUpstream}
	c := startedController(t, newFakeChannel(), d, 0)

	out, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DerivationNotice, out.Notice)
	require.NotNil(t, out.Session)
	assert.Equal(t, "s1", out.Session.SessionID)
	assert.Nil(t, out.Report)
	assert.Equal(t, StateEnded, c.State())
}

func TestDuplicateEndIsBusy(t *testing.T) {
	d := &fakeDeriver{block: make(chan struct{})}
	c := startedController(t, newFakeChannel(), d, 0)

	done := make(chan struct{})
	go func() {
		_, _ = c.End(context.Background())
		close(done)
	}()
	require.Eventually(t, func() bool { return c.State() == StateEnded }, time.Second, time.Millisecond)

	_, err := c.End(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(d.block)
	<-done
}

func TestEndBeforeStart(t *testing.T) {
	c := NewController(testSession(), testDeps(newFakeChannel(), &fakeDeriver{}, 0))
	_, err := c.End(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestCloseSkipsDerivation(t *testing.T) {
	ch := newFakeChannel()
	d := &fakeDeriver{}
	c := startedController(t, ch, d, 0)

	c.Close(context.Background())
	assert.Equal(t, StateEnded, c.State())
	assert.Equal(t, 1, ch.stopCount())
	assert.Empty(t, d.requests())

	_, err := c.End(context.Background())
	assert.ErrorIs(t, err, ErrEnded)
	_, err = c.Start(context.Background())
	assert.ErrorIs(t, err, ErrEnded)
}

func TestChannelCallEndTriggersDerivation(t *testing.T) {
	ch := newFakeChannel()
	d := &fakeDeriver{}
	c := startedController(t, ch, d, 0)
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "headache", Final: true})

	c.HandleEvent(Event{Type: EventCallEnd})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := c.Wait(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.Equal(t, "derived", out.Report.Summary)
	assert.Zero(t, ch.stopCount())

	again, err := c.End(context.Background())
	require.NoError(t, err)
	assert.Same(t, out, again)
}

func TestSpeechUpdateUsesReportedRole(t *testing.T) {
	c := startedController(t, newFakeChannel(), &fakeDeriver{}, 0)

	c.HandleEvent(Event{Type: EventSpeechStart, Role: RoleUser})
	c.HandleEvent(Event{Type: EventTranscript, Text: "it started yesterday", Final: true})
	assert.Equal(t, []consultation.Turn{{Role: RoleUser, Text: "it started yesterday"}}, c.Snapshot().Transcript)

	c.HandleEvent(Event{Type: EventSpeechStart, Role: RoleAssistant})
	c.HandleEvent(Event{Type: EventSpeechEnd, Role: RoleAssistant})
	assert.Equal(t, RoleUser, c.Snapshot().CurrentRole)
}

func TestEndAfterChannelHangUpReturnsOutcome(t *testing.T) {
	ch := newFakeChannel()
	d := &fakeDeriver{}
	c := startedController(t, ch, d, 200*time.Millisecond)
	c.HandleEvent(Event{Type: EventTranscript, Role: RoleUser, Text: "headache", Final: true})
	c.HandleEvent(Event{Type: EventCallEnd})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := c.End(ctx)
	require.NoError(t, err)
	require.NotNil(t, out)
	require.NotNil(t, out.Report)
	assert.Equal(t, "derived", out.Report.Summary)
	assert.Len(t, d.requests(), 1)
	assert.Zero(t, ch.stopCount())
}
