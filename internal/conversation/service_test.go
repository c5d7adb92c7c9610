package conversation

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/ticketbot/internal/access"
	"github.com/m3rciful/ticketbot/internal/dialog"
	"github.com/m3rciful/ticketbot/internal/metrics"
	"github.com/m3rciful/ticketbot/internal/ratelimit"
	"github.com/m3rciful/ticketbot/internal/render"
	"github.com/m3rciful/ticketbot/internal/usermutex"
)

type sentArtifact struct {
	path    string
	caption string
	existed bool
}

type fakeOut struct {
	mu        sync.Mutex
	texts     []string
	artifacts []sentArtifact
	sendErr   error
	uploadErr error
}

func (o *fakeOut) SendText(_ context.Context, _ int64, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.texts = append(o.texts, text)
	return o.sendErr
}

func (o *fakeOut) SendArtifact(_ context.Context, _ int64, path, caption string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, err := os.Stat(path)
	o.artifacts = append(o.artifacts, sentArtifact{path: path, caption: caption, existed: err == nil})
	return o.uploadErr
}

func (o *fakeOut) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.texts) == 0 {
		return ""
	}
	return o.texts[len(o.texts)-1]
}

type fakeRenderer struct {
	mu      sync.Mutex
	dir     string
	calls   []dialog.Ticket
	err     error
	paths   []string
	blockOn chan struct{}
}

func (r *fakeRenderer) Render(ctx context.Context, t dialog.Ticket) (render.Artifact, error) {
	r.mu.Lock()
	r.calls = append(r.calls, t)
	r.mu.Unlock()
	if r.blockOn != nil {
		select {
		case <-r.blockOn:
		case <-ctx.Done():
			return render.Artifact{}, &render.Error{Stage: "video", Err: ctx.Err()}
		}
	}
	if r.err != nil {
		return render.Artifact{}, r.err
	}
	path := filepath.Join(r.dir, "ticket.jpg")
	if err := os.WriteFile(path, []byte("jpg"), 0o644); err != nil {
		return render.Artifact{}, err
	}
	r.mu.Lock()
	r.paths = append(r.paths, path)
	r.mu.Unlock()
	return render.Artifact{Primary: path, Files: []string{path}}, nil
}

type fakeGate struct {
	mu      sync.Mutex
	allowed map[int64]bool
	asked   []access.Request
}

func (g *fakeGate) Authorize(_ context.Context, req access.Request, _ access.Notifier) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.allowed[req.UserID] {
		return true
	}
	g.asked = append(g.asked, req)
	return false
}

type fixture struct {
	svc      *Service
	store    *dialog.Store
	renderer *fakeRenderer
	gate     *fakeGate
	locks    *usermutex.Table
	out      *fakeOut
}

const user = int64(7)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:    dialog.NewStore(),
		renderer: &fakeRenderer{dir: t.TempDir()},
		gate:     &fakeGate{allowed: map[int64]bool{user: true}},
		locks:    usermutex.New(),
		out:      &fakeOut{},
	}
	svc, err := New(Deps{
		Store: f.store,
		Engine: dialog.NewEngine(dialog.Routes{
			Bus: map[string][2]string{"12": {"X—Y", "Y—X"}},
		}),
		Limiter:       ratelimit.New(100, time.Minute),
		Gate:          f.gate,
		Locks:         f.locks,
		Renderer:      f.renderer,
		Metrics:       metrics.New(),
		LockTimeout:   20 * time.Millisecond,
		RenderTimeout: time.Second,
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func msg(text string) Inbound {
	return Inbound{UserID: user, ChatID: 70, Text: text, Private: true, Username: "ivan"}
}

func (f *fixture) send(t *testing.T, text string) Outcome {
	t.Helper()
	outcome, err := f.svc.HandleMessage(context.Background(), msg(text), f.out)
	require.NoError(t, err)
	return outcome
}

func TestHandleMessageEndToEnd(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, OutcomeOK, f.send(t, "1"))
	assert.Equal(t, OutcomeOK, f.send(t, "12"))
	assert.Equal(t, OutcomeOK, f.send(t, "1"))
	assert.Equal(t, dialog.MsgGarage, f.out.last())
	assert.Equal(t, OutcomeRendered, f.send(t, "AB1234"))

	require.Len(t, f.renderer.calls, 1)
	assert.Equal(t, dialog.Ticket{
		TransportLabel: "Автобус",
		RouteNum:       "12",
		Route:          "X—Y",
		GarageNumber:   "AB1234",
	}, f.renderer.calls[0])

	require.Len(t, f.out.artifacts, 1)
	assert.True(t, f.out.artifacts[0].existed)
	assert.Equal(t, MsgTicketCaption, f.out.artifacts[0].caption)
	assert.Equal(t, MsgDone, f.out.last())

	assert.False(t, f.store.Has(user), "session ends after render")
	assert.NoFileExists(t, f.renderer.paths[0], "artifact is removed after dispatch")
}

func TestHandleMessageInvalidInput(t *testing.T) {
	f := newFixture(t)
	assert.Equal(t, OutcomeInvalidInput, f.send(t, "tram"))
	assert.Equal(t, dialog.MsgTransportRetry, f.out.last())
	st, ok := f.store.Get(user)
	require.True(t, ok)
	assert.Equal(t, dialog.State{}, st)
}

func TestHandleMessageRenderFailureDeletesState(t *testing.T) {
	f := newFixture(t)
	f.renderer.err = &render.Error{Stage: "encode", Err: errors.New("disk full")}

	f.send(t, "1")
	f.send(t, "999")
	assert.Equal(t, OutcomeRenderFailed, f.send(t, "55"))
	assert.Equal(t, MsgRenderFailed+"encode: disk full", f.out.last())
	assert.False(t, f.store.Has(user))
	assert.Empty(t, f.out.artifacts)

	assert.Equal(t, OutcomeOK, f.send(t, "2"), "next message starts a fresh session")
	assert.Equal(t, dialog.MsgRouteTrolley, f.out.last())
}

func TestHandleMessageUploadFailureNotifiesUser(t *testing.T) {
	f := newFixture(t)
	f.out.uploadErr = errors.New("upload failed")

	f.send(t, "1")
	f.send(t, "999")
	outcome, err := f.svc.HandleMessage(context.Background(), msg("55"), f.out)
	require.ErrorIs(t, err, f.out.uploadErr)
	assert.Equal(t, OutcomeRenderFailed, outcome)
	assert.Equal(t, MsgSendFailed, f.out.last())

	require.Len(t, f.out.artifacts, 1)
	assert.NoFileExists(t, f.renderer.paths[0])
	assert.False(t, f.store.Has(user))
}

func TestHandleMessageRenderTimeout(t *testing.T) {
	f := newFixture(t)
	f.svc.RenderTimeout = 20 * time.Millisecond
	f.renderer.blockOn = make(chan struct{})

	f.send(t, "1")
	f.send(t, "999")
	assert.Equal(t, OutcomeRenderFailed, f.send(t, "55"))
	assert.Contains(t, f.out.last(), context.DeadlineExceeded.Error())
	assert.False(t, f.store.Has(user))
}

func TestHandleMessageUnexpectedState(t *testing.T) {
	f := newFixture(t)
	full := "x"
	f.store.Put(user, dialog.State{
		Transport:    dialog.TransportBus,
		RouteNum:     &full,
		Route:        &full,
		GarageNumber: &full,
	})
	assert.Equal(t, OutcomeUnexpectedState, f.send(t, "hello"))
	assert.Equal(t, dialog.MsgUnexpected, f.out.last())
	assert.False(t, f.store.Has(user))
}

func TestHandleMessageRejectsGroupChats(t *testing.T) {
	f := newFixture(t)
	in := msg("1")
	in.Private = false
	outcome, err := f.svc.HandleMessage(context.Background(), in, f.out)
	require.NoError(t, err)
	assert.Equal(t, OutcomeRejectedChat, outcome)
	assert.Equal(t, MsgPrivateOnly, f.out.last())
	assert.False(t, f.store.Has(user))
}

func TestHandleMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	f.svc.Limiter = ratelimit.New(6, 10*time.Second)

	for i := 0; i < 6; i++ {
		f.send(t, "tram")
	}
	assert.Equal(t, OutcomeRateLimited, f.send(t, "1"))
	assert.Equal(t, MsgRateLimited, f.out.last())
	st, _ := f.store.Get(user)
	assert.Equal(t, dialog.TransportUnset, st.Transport, "rejected event never reaches the engine")
}

func TestHandleMessageUnauthorized(t *testing.T) {
	f := newFixture(t)
	in := msg("1")
	in.UserID = 99

	outcome, err := f.svc.HandleMessage(context.Background(), in, f.out)
	require.NoError(t, err)
	assert.Equal(t, OutcomeUnauthorized, outcome)
	assert.Equal(t, MsgNoAccess, f.out.last())
	require.Len(t, f.gate.asked, 1)
	assert.Equal(t, int64(99), f.gate.asked[0].UserID)
	assert.False(t, f.store.Has(99))
}

func TestHandleMessageLockTimeout(t *testing.T) {
	f := newFixture(t)
	_, g, err := f.locks.Acquire(context.Background(), user, time.Second)
	require.NoError(t, err)

	assert.Equal(t, OutcomeLockTimeout, f.send(t, "1"))
	assert.Equal(t, MsgBusy, f.out.last())
	assert.False(t, f.store.Has(user), "dropped event does not touch state")

	g.Release()
	assert.Equal(t, OutcomeOK, f.send(t, "1"))
}

func TestResetClearsSession(t *testing.T) {
	f := newFixture(t)
	f.send(t, "1")
	f.send(t, "12")

	outcome, err := f.svc.Reset(context.Background(), msg("/start"), f.out)
	require.NoError(t, err)
	assert.Equal(t, OutcomeReset, outcome)
	assert.Equal(t, dialog.MsgStart, f.out.last())
	st, ok := f.store.Get(user)
	require.True(t, ok)
	assert.Equal(t, dialog.State{}, st)
}

func TestSendErrorIsReported(t *testing.T) {
	f := newFixture(t)
	f.out.sendErr = errors.New("forbidden: bot was blocked by the user")
	outcome, err := f.svc.HandleMessage(context.Background(), msg("1"), f.out)
	assert.Equal(t, OutcomeOK, outcome)
	assert.Error(t, err)
	st, _ := f.store.Get(user)
	assert.Equal(t, dialog.TransportBus, st.Transport, "state advances even when the reply is lost")
}

func TestConcurrentRendersForOneUserNeverOverlap(t *testing.T) {
	f := newFixture(t)
	f.svc.LockTimeout = 5 * time.Second
	f.send(t, "1")
	f.send(t, "999")

	var wg sync.WaitGroup
	outcomes := make(chan Outcome, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o, _ := f.svc.HandleMessage(context.Background(), msg("55"), f.out)
			outcomes <- o
		}()
	}
	wg.Wait()
	close(outcomes)

	rendered := 0
	for o := range outcomes {
		if o == OutcomeRendered {
			rendered++
		}
	}
	assert.Equal(t, 1, rendered, "only the first garage number completes the session")
	assert.Len(t, f.renderer.calls, 1)
}

func TestNewValidatesDeps(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}
