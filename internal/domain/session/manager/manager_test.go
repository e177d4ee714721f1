// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package manager

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/ast/exec"
	"github.com/ManuGH/hostgw/internal/domain/session/model"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/emulator/fake"
	"github.com/ManuGH/hostgw/internal/protocol"
	"github.com/ManuGH/hostgw/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingTransport captures every frame sent to the client.
type recordingTransport struct {
	mu     sync.Mutex
	msgs   []protocol.Message
	closed bool
}

func (t *recordingTransport) Send(msg protocol.Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgs = append(t.msgs, msg)
	return nil
}

func (t *recordingTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *recordingTransport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

func (t *recordingTransport) find(mt protocol.MessageType) (protocol.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, msg := range t.msgs {
		if msg.Type == mt {
			return msg, true
		}
	}
	return protocol.Message{}, false
}

func (t *recordingTransport) count(mt protocol.MessageType) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, msg := range t.msgs {
		if msg.Type == mt {
			n++
		}
	}
	return n
}

func (t *recordingTransport) lastStatus() (protocol.ASTStatusMeta, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := len(t.msgs) - 1; i >= 0; i-- {
		if t.msgs[i].Type == protocol.TypeASTStatus {
			var meta protocol.ASTStatusMeta
			if err := json.Unmarshal(t.msgs[i].Meta, &meta); err == nil {
				return meta, true
			}
		}
	}
	return protocol.ASTStatusMeta{}, false
}

// quickScript succeeds instantly on every item.
type quickScript struct{}

func (quickScript) Info() ast.Info {
	return ast.Info{Name: "quick", SupportsParallel: false}
}

func (quickScript) PrepareItems(_ context.Context, _ *ast.Runtime, params protocol.RunParams) ([]ast.Item, error) {
	items := make([]ast.Item, 0, len(params.Items))
	for _, it := range params.Items {
		items = append(items, it)
	}
	return items, nil
}

func (quickScript) ValidateItem(ast.Item) bool { return true }

func (quickScript) ItemID(item ast.Item) string { return item.(string) }

func (quickScript) Authenticate(context.Context, emulator.Terminal, ast.Credentials) error {
	return nil
}

func (quickScript) ProcessSingleItem(_ context.Context, _ emulator.Terminal, _ *ast.Shots, item ast.Item, _, _ int) (map[string]any, error) {
	return map[string]any{"itemId": item.(string)}, nil
}

func (quickScript) Logoff(context.Context, emulator.Terminal) error { return nil }

type registryEnv struct {
	registry *Registry
	opener   *fake.Opener
	store    *store.MemoryStore
}

func newTestRegistry(t *testing.T, opts Options) *registryEnv {
	t.Helper()
	env := &registryEnv{opener: &fake.Opener{}, store: store.NewMemory()}

	scripts := ast.NewRegistry()
	scripts.Register("quick", func() ast.Script { return quickScript{} })

	if opts.MaxSessions == 0 {
		opts.MaxSessions = 5
	}
	if opts.GracePeriod == 0 {
		opts.GracePeriod = time.Minute
	}
	if opts.Opener == nil {
		opts.Opener = env.opener
	}
	opts.Runner = &exec.Runner{Store: env.store, DefaultMaxSessions: 2}
	opts.Scripts = scripts

	env.registry = NewRegistry(opts)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = env.registry.Shutdown(ctx)
	})
	return env
}

func runMessage(sessionID, astName string, params protocol.RunParams) protocol.Message {
	meta, _ := json.Marshal(protocol.ASTRunMeta{ASTName: astName, Params: params})
	return protocol.Message{Type: protocol.TypeASTRun, SessionID: sessionID, Meta: meta}
}

func TestAttachCreatesSession(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}

	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, 1, env.registry.Count())
	assert.Equal(t, model.StateAttached, c.State())

	require.Equal(t, 1, env.opener.OpenCount())
	assert.Equal(t, "alpha", env.opener.Opened[0].SessionName, "emulator session named after the gateway session")

	msg, ok := tr.find(protocol.TypeSessionCreated)
	require.True(t, ok)
	var meta protocol.SessionCreatedMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.False(t, meta.Reattached)
}

func TestAttachRejectsUnsafeSessionID(t *testing.T) {
	env := newTestRegistry(t, Options{})
	_, err := env.registry.Attach(context.Background(), "../etc/passwd", &recordingTransport{})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeValidationError, protocol.CodeOf(err))
	assert.Zero(t, env.opener.OpenCount())
}

func TestAttachEnforcesSessionLimit(t *testing.T) {
	env := newTestRegistry(t, Options{MaxSessions: 1})
	_, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.NoError(t, err)

	_, err = env.registry.Attach(context.Background(), "beta", &recordingTransport{})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeSessionLimitReached, protocol.CodeOf(err))
	assert.Equal(t, 1, env.registry.Count())
}

func TestAttachEmulatorFailure(t *testing.T) {
	env := newTestRegistry(t, Options{})
	env.opener.OpenErr = map[string]error{"alpha": errors.New("host unreachable")}

	_, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeEmulatorFailed, protocol.CodeOf(err))
	assert.Zero(t, env.registry.Count())
}

func TestReattachWithinGracePeriod(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: time.Minute})
	first := &recordingTransport{}
	c1, err := env.registry.Attach(context.Background(), "alpha", first)
	require.NoError(t, err)

	env.registry.HandleDisconnect("alpha")
	assert.Equal(t, model.StateDetached, c1.State())
	assert.Equal(t, 1, env.registry.Count(), "session survives the disconnect")

	second := &recordingTransport{}
	c2, err := env.registry.Attach(context.Background(), "alpha", second)
	require.NoError(t, err)
	assert.Same(t, c1, c2, "reattach binds to the existing session")
	assert.Equal(t, 1, env.opener.OpenCount(), "no second emulator session")

	msg, ok := second.find(protocol.TypeSessionCreated)
	require.True(t, ok)
	var meta protocol.SessionCreatedMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.True(t, meta.Reattached)
	assert.False(t, env.opener.Opened[0].Dropped())
}

func TestGraceExpiryDestroysIdleSession(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: 30 * time.Millisecond})
	_, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.NoError(t, err)

	env.registry.HandleDisconnect("alpha")

	require.Eventually(t, func() bool {
		return env.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.opener.Opened[0].Dropped())
}

func TestGraceExpiryDeferredWhileExecutionRuns(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: 25 * time.Millisecond})
	c, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.NoError(t, err)

	// Mark an execution in flight; the grace timer must keep rescheduling.
	rt := ast.NewRuntime("alpha", "exec-1", "quick", nil)
	c.mu.Lock()
	c.runtime = rt
	c.mu.Unlock()

	env.registry.HandleDisconnect("alpha")
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, env.registry.Count(), "destruction deferred while running")

	c.mu.Lock()
	c.runtime = nil
	c.mu.Unlock()

	require.Eventually(t, func() bool {
		return env.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.opener.Opened[0].Dropped())
}

func TestDestroyNotifiesAndDropsEmulator(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	_, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	env.registry.Destroy("alpha", model.ReasonClientRequest)

	assert.Zero(t, env.registry.Count())
	assert.True(t, tr.Closed())
	assert.True(t, env.opener.Opened[0].Dropped())

	msg, ok := tr.find(protocol.TypeSessionDestroyed)
	require.True(t, ok)
	var meta protocol.SessionDestroyedMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.Equal(t, model.ReasonClientRequest, meta.Reason)
}

func TestSessionDestroyFrameRequestsDestruction(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.HandleFrame(context.Background(), protocol.Message{Type: protocol.TypeSessionDestroy})
	assert.Zero(t, env.registry.Count())
	assert.True(t, env.opener.Opened[0].Dropped())
}

func TestShutdownDestroysAllSessions(t *testing.T) {
	env := newTestRegistry(t, Options{})
	_, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.NoError(t, err)
	_, err = env.registry.Attach(context.Background(), "beta", &recordingTransport{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, env.registry.Shutdown(ctx))
	assert.Zero(t, env.registry.Count())
	for _, sess := range env.opener.Opened {
		assert.True(t, sess.Dropped())
	}

	// A registry that is shutting down refuses new sessions.
	_, err = env.registry.Attach(context.Background(), "gamma", &recordingTransport{})
	require.Error(t, err)
	assert.Equal(t, protocol.CodeInternalError, protocol.CodeOf(err))
}

func TestPingAnsweredWithPong(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.HandleFrame(context.Background(), protocol.Message{Type: protocol.TypePing, Timestamp: 123456})

	msg, ok := tr.find(protocol.TypePong)
	require.True(t, ok)
	assert.Equal(t, int64(123456), msg.Timestamp, "pong echoes the ping timestamp")
}

func TestDataFrameForwardedToEmulator(t *testing.T) {
	env := newTestRegistry(t, Options{})
	c, err := env.registry.Attach(context.Background(), "alpha", &recordingTransport{})
	require.NoError(t, err)

	c.HandleFrame(context.Background(), protocol.Message{Type: protocol.TypeData, Data: "hello\r"})
	assert.Equal(t, []string{"hello\r"}, env.opener.Opened[0].RawInput)
}

func TestScreenUpdatesPushedToClient(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	_, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	env.opener.Opened[0].PushScreen("SIGN-ON SCREEN")

	msg, ok := tr.find(protocol.TypeData)
	require.True(t, ok)
	assert.Equal(t, "SIGN-ON SCREEN", msg.Data)
}

func TestControlWithoutExecutionRejected(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	for _, mt := range []protocol.MessageType{protocol.TypeASTCancel, protocol.TypeASTPause, protocol.TypeASTResume} {
		c.HandleFrame(context.Background(), protocol.Message{Type: mt})
	}
	assert.Equal(t, 3, tr.count(protocol.TypeError))

	msg, _ := tr.find(protocol.TypeError)
	var meta protocol.ErrorMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.Equal(t, protocol.CodeValidationError, meta.Code)
}

func TestUnknownMessageTypeRejected(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.HandleFrame(context.Background(), protocol.Message{Type: "bogus"})

	msg, ok := tr.find(protocol.TypeError)
	require.True(t, ok)
	var meta protocol.ErrorMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.Equal(t, protocol.CodeInvalidMessage, meta.Code)
}

func TestRunUnknownScriptRejected(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.HandleFrame(context.Background(), runMessage("alpha", "nope", protocol.RunParams{}))

	msg, ok := tr.find(protocol.TypeError)
	require.True(t, ok)
	var meta protocol.ErrorMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.Equal(t, protocol.CodeUnknownAST, meta.Code)
	assert.False(t, c.IsRunning())
}

func TestRunExecutesScript(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.HandleFrame(context.Background(), runMessage("alpha", "quick", protocol.RunParams{
		Username: "USER01",
		Password: "pw",
		Items:    []string{"ITEM00001", "ITEM00002"},
	}))

	require.Eventually(t, func() bool {
		meta, ok := tr.lastStatus()
		return ok && meta.Status == string(ast.StatusSuccess)
	}, 5*time.Second, 10*time.Millisecond)

	meta, _ := tr.lastStatus()
	assert.Equal(t, "quick", meta.ASTName)
	assert.NotEmpty(t, meta.ExecutionID)
	assert.Equal(t, 2, tr.count(protocol.TypeASTItemResult))
	require.Eventually(t, func() bool {
		return !c.IsRunning()
	}, 2*time.Second, 10*time.Millisecond, "runtime cleared after the run")

	execs, err := env.store.ListExecutions(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, string(ast.StatusSuccess), execs[0].Status)
}

func TestRunHonorsCallerExecutionID(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	meta, _ := json.Marshal(protocol.ASTRunMeta{
		ASTName:     "quick",
		ExecutionID: "retry-7f3a",
		Params: protocol.RunParams{
			Username: "USER01",
			Password: "pw",
			Items:    []string{"ITEM00001"},
		},
	})
	c.HandleFrame(context.Background(), protocol.Message{Type: protocol.TypeASTRun, SessionID: "alpha", Meta: meta})

	require.Eventually(t, func() bool {
		st, ok := tr.lastStatus()
		return ok && st.Status == string(ast.StatusSuccess)
	}, 5*time.Second, 10*time.Millisecond)

	st, _ := tr.lastStatus()
	assert.Equal(t, "retry-7f3a", st.ExecutionID, "caller-supplied execution id is echoed")

	execs, err := env.store.ListExecutions(context.Background(), "alpha")
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, "retry-7f3a", execs[0].ExecutionID)
}

func TestProvisionedSessionClaimedByClient(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: time.Minute})

	c1, err := env.registry.Provision(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, env.registry.Count())
	assert.Equal(t, model.StateDetached, c1.State())
	require.Equal(t, 1, env.opener.OpenCount())

	tr := &recordingTransport{}
	c2, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)
	assert.Same(t, c1, c2, "the client claims the provisioned session")
	assert.Equal(t, 1, env.opener.OpenCount(), "no second emulator session")

	msg, ok := tr.find(protocol.TypeSessionCreated)
	require.True(t, ok)
	var meta protocol.SessionCreatedMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.True(t, meta.Reattached)
}

func TestUnclaimedProvisionedSessionExpires(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: 30 * time.Millisecond})

	_, err := env.registry.Provision(context.Background(), "alpha")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return env.registry.Count() == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.True(t, env.opener.Opened[0].Dropped())
}

func TestRunWhileBusyRejected(t *testing.T) {
	env := newTestRegistry(t, Options{})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)

	c.mu.Lock()
	c.runtime = ast.NewRuntime("alpha", "exec-1", "quick", nil)
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.runtime = nil
		c.mu.Unlock()
	}()

	c.HandleFrame(context.Background(), runMessage("alpha", "quick", protocol.RunParams{
		Username: "USER01", Password: "pw",
	}))

	msg, ok := tr.find(protocol.TypeError)
	require.True(t, ok)
	var meta protocol.ErrorMeta
	require.NoError(t, json.Unmarshal(msg.Meta, &meta))
	assert.Equal(t, protocol.CodeASTBusy, meta.Code)
}

func TestFramesDroppedWhileDetached(t *testing.T) {
	env := newTestRegistry(t, Options{GracePeriod: time.Minute})
	tr := &recordingTransport{}
	c, err := env.registry.Attach(context.Background(), "alpha", tr)
	require.NoError(t, err)
	env.registry.HandleDisconnect("alpha")

	before := tr.count(protocol.TypeData)
	env.opener.Opened[0].PushScreen("SCREEN WHILE AWAY")
	assert.Equal(t, before, tr.count(protocol.TypeData), "frames are dropped, not queued")
	assert.Equal(t, model.StateDetached, c.State())
}
