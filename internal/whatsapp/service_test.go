package whatsapp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/asaskevich/EventBus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow"
	waE2E "go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/config"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/credstore"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/domain"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/messaging"
	"github.com/Shahbazaliabro937/Mr-JiN-MD-Bot/internal/registry"
)

const waitFor = 2 * time.Second

type fakeStore struct {
	saves     atomic.Int32
	closed    atomic.Bool
	failSaves atomic.Bool
}

func (s *fakeStore) Device() *store.Device { return nil }

func (s *fakeStore) Save(context.Context) error {
	if s.failSaves.Load() {
		panic("save failed")
	}
	s.saves.Add(1)
	return nil
}

func (s *fakeStore) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeLoader struct {
	root    string
	mu      sync.Mutex
	stores  map[string]*fakeStore
	loadErr error
}

func newFakeLoader(t *testing.T) *fakeLoader {
	return &fakeLoader{root: t.TempDir(), stores: make(map[string]*fakeStore)}
}

func (l *fakeLoader) Load(_ context.Context, identity string) (credstore.Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loadErr != nil {
		return nil, l.loadErr
	}
	if err := os.MkdirAll(filepath.Join(l.root, identity), 0o700); err != nil {
		return nil, err
	}
	st := &fakeStore{}
	l.stores[identity] = st
	return st, nil
}

func (l *fakeLoader) store(identity string) *fakeStore {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stores[identity]
}

func (l *fakeLoader) Delete(identity string) error {
	return os.RemoveAll(filepath.Join(l.root, identity))
}

func (l *fakeLoader) ListIdentities() ([]string, error) {
	return credstore.NewManager(l.root, nil).ListIdentities()
}

type fakeClient struct {
	identity string
	events   chan messaging.Event
	connects atomic.Int32
	closed   atomic.Bool

	mu    sync.Mutex
	texts []string
}

func (c *fakeClient) Events() <-chan messaging.Event { return c.events }

func (c *fakeClient) Connect(context.Context) error {
	c.connects.Add(1)
	return nil
}

func (c *fakeClient) Close() { c.closed.Store(true) }

func (c *fakeClient) SendText(_ context.Context, _ types.JID, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	return nil
}

func (c *fakeClient) SendReaction(context.Context, types.JID, types.JID, types.MessageID, string) error {
	return nil
}

func (c *fakeClient) SendMedia(context.Context, types.JID, messaging.OutgoingMedia) error {
	return nil
}

func (c *fakeClient) MarkRead(context.Context, types.JID, types.JID, []types.MessageID) error {
	return nil
}

func (c *fakeClient) Download(context.Context, whatsmeow.DownloadableMessage) ([]byte, error) {
	return nil, nil
}

func (c *fakeClient) sentTexts() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.texts...)
}

type fakeFactory struct {
	created chan *fakeClient
	count   atomic.Int32
	newErr  error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{created: make(chan *fakeClient, 32)}
}

func (f *fakeFactory) New(_ context.Context, identity string, _ credstore.Store) (messaging.Client, error) {
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.count.Add(1)
	c := &fakeClient{identity: identity, events: make(chan messaging.Event, 64)}
	f.created <- c
	return c, nil
}

func (f *fakeFactory) next(t *testing.T) *fakeClient {
	t.Helper()
	select {
	case c := <-f.created:
		return c
	case <-time.After(waitFor):
		t.Fatal("no client created")
		return nil
	}
}

type testEnv struct {
	svc     *Service
	loader  *fakeLoader
	factory *fakeFactory
	bus     EventBus.Bus
}

func testConfig() config.WhatsAppConfig {
	return config.WhatsAppConfig{
		RestoreConcurrency: 2,
		Reconnect: config.ReconnectConfig{
			MaxDelay:   10 * time.Millisecond,
			Multiplier: 2,
		},
	}
}

func newTestEnv(t *testing.T, cfg config.WhatsAppConfig) *testEnv {
	t.Helper()
	env := &testEnv{loader: newFakeLoader(t), factory: newFakeFactory(), bus: EventBus.New()}
	env.svc = NewService(cfg, Deps{
		Registry: registry.New(),
		Creds:    env.loader,
		Factory:  env.factory,
		Bus:      env.bus,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), waitFor)
		defer cancel()
		_ = env.svc.Shutdown(ctx)
	})
	return env
}

func waitResponse(t *testing.T, slot *ResultSlot) FirstResponse {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	r, err := slot.Wait(ctx)
	require.NoError(t, err)
	return r
}

func TestConcurrentStartsSingleInstance(t *testing.T) {
	env := newTestEnv(t, testConfig())
	var started, active atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			outcome, err := env.svc.StartSession(context.Background(), "alice", Headless())
			assert.NoError(t, err)
			switch outcome {
			case OutcomeStarted:
				started.Add(1)
			case OutcomeAlreadyActive:
				active.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 1, started.Load())
	assert.EqualValues(t, 15, active.Load())
	assert.Equal(t, 1, env.svc.Registry().Len())
	assert.EqualValues(t, 1, env.factory.count.Load())
}

func TestStartSessionDefaultsAndQR(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := NewResultSlot()

	outcome, err := env.svc.StartSession(context.Background(), "alice", Originating(slot))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, outcome)

	s, ok := env.svc.Registry().Settings("alice")
	require.True(t, ok)
	assert.Equal(t, domain.DefaultSessionSettings(), s)
	assert.True(t, env.svc.IsActive("alice"))

	c := env.factory.next(t)
	c.events <- messaging.ConnectionUpdate{State: messaging.ConnPairing, QRCode: "2@pairing-ref"}
	r := waitResponse(t, slot)
	assert.Equal(t, ResponsePairing, r.Kind)
	assert.Contains(t, r.QRDataURL, "data:image/png;base64,")

	c.events <- messaging.ConnectionUpdate{State: messaging.ConnOpen}
	h, _ := env.svc.Registry().Lookup("alice")
	require.Eventually(t, func() bool { return h.State() == domain.StateOpen }, waitFor, 5*time.Millisecond)
	assert.False(t, slot.Deliver(FirstResponse{Kind: ResponseFailed}))
}

func TestStartSessionConnected(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := NewResultSlot()
	_, err := env.svc.StartSession(context.Background(), "alice", Originating(slot))
	require.NoError(t, err)

	c := env.factory.next(t)
	for i := 0; i < 3; i++ {
		c.events <- messaging.CredentialUpdate{Reason: "pair_success"}
	}
	c.events <- messaging.ConnectionUpdate{State: messaging.ConnOpen}

	r := waitResponse(t, slot)
	assert.Equal(t, ResponseConnected, r.Kind)
	assert.Equal(t, "Session alice connected!", r.Message)
	// saves run in the loop before the open event is handled
	assert.EqualValues(t, 3, env.loader.store("alice").saves.Load())
}

func TestAlreadyActive(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, err := env.svc.StartSession(context.Background(), "alice", Headless())
	require.NoError(t, err)

	outcome, err := env.svc.StartSession(context.Background(), "alice", Originating(NewResultSlot()))
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyActive, outcome)
	assert.EqualValues(t, 1, env.factory.count.Load())
}

func TestTerminalDisconnectCleansUp(t *testing.T) {
	env := newTestEnv(t, testConfig())
	var terminated atomic.Int32
	require.NoError(t, env.bus.Subscribe(domain.TopicSessionState, func(ev domain.SessionEvent) {
		if ev.State == domain.StateTerminated {
			terminated.Add(1)
		}
	}))

	_, err := env.svc.StartSession(context.Background(), "alice", Headless())
	require.NoError(t, err)
	dir := filepath.Join(env.loader.root, "alice")
	assert.DirExists(t, dir)

	c := env.factory.next(t)
	c.events <- messaging.ConnectionUpdate{State: messaging.ConnOpen}
	c.events <- messaging.ConnectionUpdate{State: messaging.ConnClosed, Reason: messaging.ReasonLoggedOut}

	require.Eventually(t, func() bool { return !env.svc.IsActive("alice") }, waitFor, 5*time.Millisecond)
	_, ok := env.svc.Registry().Settings("alice")
	assert.False(t, ok)
	require.Eventually(t, func() bool { return terminated.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.NoDirExists(t, dir)
	assert.True(t, c.closed.Load())
	assert.True(t, env.loader.store("alice").closed.Load())
	assert.EqualValues(t, 1, env.factory.count.Load())
}

func TestTransientDisconnectReconnectsInPlace(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := NewResultSlot()
	_, err := env.svc.StartSession(context.Background(), "alice", Originating(slot))
	require.NoError(t, err)

	first := env.factory.next(t)
	first.events <- messaging.ConnectionUpdate{State: messaging.ConnPairing, QRCode: "first"}
	r := waitResponse(t, slot)
	require.Equal(t, ResponsePairing, r.Kind)

	first.events <- messaging.ConnectionUpdate{State: messaging.ConnClosed, Reason: messaging.ReasonConnectionLost}
	second := env.factory.next(t)
	assert.True(t, first.closed.Load())

	h, ok := env.svc.Registry().Lookup("alice")
	require.True(t, ok)
	assert.Equal(t, 1, env.svc.Registry().Len())
	require.Eventually(t, func() bool { return second.connects.Load() == 1 }, waitFor, 5*time.Millisecond)
	assert.Same(t, second, h.Client())

	second.events <- messaging.ConnectionUpdate{State: messaging.ConnPairing, QRCode: "second"}
	second.events <- messaging.ConnectionUpdate{State: messaging.ConnOpen}
	require.Eventually(t, func() bool { return h.State() == domain.StateOpen }, waitFor, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = slot.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded, "caller must be notified only once")
	assert.DirExists(t, filepath.Join(env.loader.root, "alice"))
}

func TestReconnectAttemptsExhausted(t *testing.T) {
	cfg := testConfig()
	cfg.Reconnect.MaxAttempts = 1
	env := newTestEnv(t, cfg)
	_, err := env.svc.StartSession(context.Background(), "alice", Headless())
	require.NoError(t, err)

	first := env.factory.next(t)
	first.events <- messaging.ConnectionUpdate{State: messaging.ConnClosed, Reason: messaging.ReasonStreamReplaced}
	second := env.factory.next(t)
	second.events <- messaging.ConnectionUpdate{State: messaging.ConnClosed, Reason: messaging.ReasonConnectionLost}

	require.Eventually(t, func() bool { return !env.svc.IsActive("alice") }, waitFor, 5*time.Millisecond)
	assert.DirExists(t, filepath.Join(env.loader.root, "alice"))
	assert.EqualValues(t, 2, env.factory.count.Load())
}

func TestStartSessionRollsBack(t *testing.T) {
	env := newTestEnv(t, testConfig())
	env.loader.loadErr = errors.New("disk full")

	_, err := env.svc.StartSession(context.Background(), "alice", Originating(NewResultSlot()))
	require.Error(t, err)
	assert.False(t, env.svc.IsActive("alice"))
	_, ok := env.svc.Registry().Settings("alice")
	assert.False(t, ok)

	env.loader.loadErr = nil
	env.factory.newErr = errors.New("bad device")
	_, err = env.svc.StartSession(context.Background(), "alice", Originating(NewResultSlot()))
	require.Error(t, err)
	assert.False(t, env.svc.IsActive("alice"))
	assert.True(t, env.loader.store("alice").closed.Load())

	env.factory.newErr = nil
	outcome, err := env.svc.StartSession(context.Background(), "alice", Headless())
	require.NoError(t, err)
	assert.Equal(t, OutcomeStarted, outcome)
}

func TestStartSessionInvalidIdentity(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, err := env.svc.StartSession(context.Background(), "../etc", Headless())
	assert.ErrorIs(t, err, credstore.ErrInvalidIdentity)
	assert.Zero(t, env.svc.Registry().Len())
}

func TestMessagesReachAutomation(t *testing.T) {
	env := newTestEnv(t, testConfig())
	_, err := env.svc.StartSession(context.Background(), "alice", Headless())
	require.NoError(t, err)

	c := env.factory.next(t)
	chat := types.NewJID("911234567890", types.DefaultUserServer)
	c.events <- messaging.MessageUpsert{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: chat, Sender: chat},
			ID:            "M1",
		},
		Message: &waE2E.Message{Conversation: proto.String(".autoreact on")},
	}

	require.Eventually(t, func() bool { return len(c.sentTexts()) == 1 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, "✅ Auto Incoming Message React is now ON", c.sentTexts()[0])
	s, _ := env.svc.Registry().Settings("alice")
	assert.True(t, s.AutoReact)
}

func TestRestoreAllIsHeadless(t *testing.T) {
	env := newTestEnv(t, testConfig())
	for _, id := range []string{"alice", "bob"} {
		require.NoError(t, os.Mkdir(filepath.Join(env.loader.root, id), 0o700))
	}

	n, err := env.svc.RestoreAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"alice", "bob"}, env.svc.Registry().ListIdentities())
}

func TestShutdownStopsSessions(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := NewResultSlot()
	_, err := env.svc.StartSession(context.Background(), "alice", Originating(slot))
	require.NoError(t, err)
	c := env.factory.next(t)

	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, env.svc.Shutdown(ctx))

	assert.True(t, c.closed.Load())
	assert.False(t, env.svc.IsActive("alice"))
	assert.DirExists(t, filepath.Join(env.loader.root, "alice"))
	assert.Equal(t, ResponseFailed, waitResponse(t, slot).Kind)

	_, err = env.svc.StartSession(context.Background(), "bob", Headless())
	assert.ErrorIs(t, err, ErrServiceClosed)
}

func TestSessionPanicClosesClient(t *testing.T) {
	env := newTestEnv(t, testConfig())
	slot := NewResultSlot()

	_, err := env.svc.StartSession(context.Background(), "alice", Originating(slot))
	require.NoError(t, err)
	c := env.factory.next(t)
	st := env.loader.store("alice")
	st.failSaves.Store(true)

	c.events <- messaging.CredentialUpdate{Reason: "pair_success"}

	r := waitResponse(t, slot)
	assert.Equal(t, ResponseFailed, r.Kind)
	require.Eventually(t, func() bool { return !env.svc.IsActive("alice") }, waitFor, 5*time.Millisecond)
	assert.True(t, c.closed.Load())
	assert.True(t, st.closed.Load())
	_, err = os.Stat(filepath.Join(env.loader.root, "alice"))
	assert.NoError(t, err)
}
