package chatbot

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"SupportChat/internal/backend"
	"SupportChat/internal/locale"
	"SupportChat/internal/session"
	"SupportChat/internal/storage"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	mu         sync.Mutex
	sendCalls  []string
	clearCalls int

	replies  []string
	sendErr  error
	clearErr error
	// clearHangs makes ClearHistory wait for its context
	clearHangs bool

	// when set, SendText signals started and waits for release
	started      chan struct{}
	release      chan struct{}
	ignoreCancel bool
}

func (f *fakeBackend) SendText(ctx context.Context, text string) (backend.Reply, error) {
	f.mu.Lock()
	f.sendCalls = append(f.sendCalls, text)
	started, release := f.started, f.release
	f.mu.Unlock()

	if release != nil {
		started <- struct{}{}
		if f.ignoreCancel {
			<-release
		} else {
			select {
			case <-release:
			case <-ctx.Done():
				return backend.Reply{}, &backend.Error{Op: "lang_chain.text", Kind: backend.KindTransport, Err: ctx.Err()}
			}
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return backend.Reply{}, f.sendErr
	}
	reply := "reply to " + text
	if len(f.replies) > 0 {
		reply, f.replies = f.replies[0], f.replies[1:]
	}
	return backend.Reply{Text: reply}, nil
}

func (f *fakeBackend) ClearHistory(ctx context.Context) (string, error) {
	f.mu.Lock()
	f.clearCalls++
	hang, clearErr := f.clearHangs, f.clearErr
	f.mu.Unlock()

	if hang {
		_, hasDeadline := ctx.Deadline()
		if !hasDeadline {
			return "", errors.New("remote clear has no deadline")
		}
		<-ctx.Done()
		return "", ctx.Err()
	}
	if clearErr != nil {
		return "", clearErr
	}
	return "Chat history cleared", nil
}

func (f *fakeBackend) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sendCalls)
}

func (f *fakeBackend) clears() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.clearCalls
}

func (f *fakeBackend) blocking(ignoreCancel bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = make(chan struct{}, 1)
	f.release = make(chan struct{})
	f.ignoreCancel = ignoreCancel
}

// gatedStore holds Load or Save until the matching gate is closed
type gatedStore struct {
	*storage.MemoryStore

	loadGate    chan struct{}
	loadStarted chan struct{}
	saveGate    chan struct{}
	saveStarted chan struct{}
}

func newGatedStore(gateLoad, gateSave bool) *gatedStore {
	g := &gatedStore{MemoryStore: storage.NewMemoryStore()}
	if gateLoad {
		g.loadGate = make(chan struct{})
		g.loadStarted = make(chan struct{}, 1)
	}
	if gateSave {
		g.saveGate = make(chan struct{})
		g.saveStarted = make(chan struct{}, 8)
	}
	return g
}

func (g *gatedStore) Load(ctx context.Context) (session.Log, error) {
	if g.loadGate != nil {
		g.loadStarted <- struct{}{}
		<-g.loadGate
	}
	return g.MemoryStore.Load(ctx)
}

func (g *gatedStore) Save(ctx context.Context, log session.Log) error {
	if g.saveGate != nil {
		g.saveStarted <- struct{}{}
		<-g.saveGate
	}
	return g.MemoryStore.Save(ctx, log)
}

var statusError = &backend.Error{
	Op:         "lang_chain.text",
	Kind:       backend.KindStatus,
	StatusCode: http.StatusInternalServerError,
	Err:        errors.New("API error: 500 Internal Server Error"),
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStartedBot(t *testing.T, be *fakeBackend, store storage.Store) *ChatBot {
	t.Helper()
	cb, err := NewChatBot(Deps{Backend: be, Storage: store, Logger: discardLogger()})
	require.NoError(t, err)
	require.NoError(t, cb.Start(context.Background()))
	t.Cleanup(cb.Wait)
	return cb
}

func pairs(texts ...string) session.Log {
	log := session.Log{}
	for i := 0; i+1 < len(texts); i += 2 {
		log = append(log, session.NewTurn(session.RoleUser, texts[i]), session.NewTurn(session.RoleModel, texts[i+1]))
	}
	return log
}

func TestNewChatBot(t *testing.T) {
	_, err := NewChatBot(Deps{Storage: storage.NewMemoryStore()})
	assert.Error(t, err)

	_, err = NewChatBot(Deps{Backend: &fakeBackend{}})
	assert.Error(t, err)

	cb, err := NewChatBot(Deps{Backend: &fakeBackend{}, Storage: storage.NewMemoryStore()})
	require.NoError(t, err)
	assert.Equal(t, StateIdle, cb.Status().State)
	assert.ErrorIs(t, cb.Submit(context.Background(), "Hello"), ErrNotStarted)
	assert.ErrorIs(t, cb.Reset(context.Background()), ErrNotStarted)
}

func TestSubmitSuccess(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{replies: []string{"Hi there"}}
	store := storage.NewMemoryStore()
	cb := newStartedBot(t, be, store)

	cb.SetInput("Hello")
	require.NoError(t, cb.SubmitInput(ctx))

	assert.Equal(t, pairs("Hello", "Hi there"), cb.Snapshot())
	assert.Equal(t, Status{State: StateIdle}, cb.Status())
	assert.Empty(t, cb.Input(), "input buffer is cleared")

	cb.Wait()
	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, pairs("Hello", "Hi there"), stored)
}

func TestSubmitEmptyIsIgnored(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{}
	store := storage.NewMemoryStore()
	cb := newStartedBot(t, be, store)

	for i := 0; i < 3; i++ {
		assert.ErrorIs(t, cb.Submit(ctx, ""), ErrEmptyInput)
		assert.ErrorIs(t, cb.Submit(ctx, "   "), ErrEmptyInput)
		assert.ErrorIs(t, cb.Submit(ctx, "\n\t"), ErrEmptyInput)
	}

	cb.Wait()
	assert.Empty(t, cb.Snapshot())
	assert.Equal(t, Status{State: StateIdle}, cb.Status())
	assert.Zero(t, be.calls())
	assert.Zero(t, store.Saves())
}

func TestSubmitFailure(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{sendErr: statusError}
	store := storage.NewMemoryStore()
	cb := newStartedBot(t, be, store)

	cb.SetInput("Hello")
	err := cb.SubmitInput(ctx)

	assert.ErrorIs(t, err, backend.ErrProtocol)
	assert.Empty(t, cb.Snapshot(), "failed message is never appended")
	assert.Equal(t, StateError, cb.Status().State)
	assert.Equal(t, locale.SendFailed.Text(locale.Eng), cb.Status().Message)
	assert.NotContains(t, cb.Status().Message, "500")
	assert.Equal(t, "Hello", cb.Input(), "input buffer is kept")

	cb.Wait()
	assert.Zero(t, store.Saves())
	assert.False(t, store.Exists())
}

func TestSubmitFailureLocalized(t *testing.T) {
	be := &fakeBackend{sendErr: statusError}
	cb, err := NewChatBot(Deps{
		Backend:  be,
		Storage:  storage.NewMemoryStore(),
		Logger:   discardLogger(),
		Language: locale.Spa,
	})
	require.NoError(t, err)
	require.NoError(t, cb.Start(context.Background()))

	_ = cb.Submit(context.Background(), "Hola")
	assert.Equal(t, "Hubo un problema al enviar tu mensaje. Por favor, intenta nuevamente.", cb.Status().Message)
}

func TestSubmitAfterErrorClearsError(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{sendErr: statusError}
	cb := newStartedBot(t, be, storage.NewMemoryStore())

	require.Error(t, cb.Submit(ctx, "Hello"))
	require.Equal(t, StateError, cb.Status().State)

	be.mu.Lock()
	be.sendErr = nil
	be.mu.Unlock()

	require.NoError(t, cb.Submit(ctx, "Hello"))
	assert.Equal(t, Status{State: StateIdle}, cb.Status())
	assert.Len(t, cb.Snapshot(), 2)
}

func TestSingleSendInFlight(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{}
	be.blocking(false)
	cb := newStartedBot(t, be, storage.NewMemoryStore())

	done := make(chan error, 1)
	go func() {
		done <- cb.Submit(ctx, "a")
	}()
	<-be.started

	assert.True(t, cb.Status().Sending())
	assert.ErrorIs(t, cb.Submit(ctx, "b"), ErrSendInFlight)

	close(be.release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, be.calls())
	assert.Equal(t, pairs("a", "reply to a"), cb.Snapshot())
}

func TestAppendIsObservedAsOnePair(t *testing.T) {
	ctx := context.Background()
	cb := newStartedBot(t, &fakeBackend{}, storage.NewMemoryStore())

	var mu sync.Mutex
	var sizes []int
	cb.Subscribe(func(c session.Change) {
		mu.Lock()
		defer mu.Unlock()
		sizes = append(sizes, len(c.Log))
	})

	require.NoError(t, cb.Submit(ctx, "one"))
	require.NoError(t, cb.Submit(ctx, "two"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2, 4}, sizes)
}

func TestReset(t *testing.T) {
	ctx := context.Background()

	for name, clearErr := range map[string]error{
		"backend reachable":   nil,
		"backend unreachable": &backend.Error{Op: "lang_chain.clear_history", Kind: backend.KindTransport, Err: errors.New("connection refused")},
	} {
		t.Run(name, func(t *testing.T) {
			store := storage.NewMemoryStore()
			require.NoError(t, store.Save(ctx, pairs("q1", "a1", "q2", "a2")))
			be := &fakeBackend{clearErr: clearErr}
			cb := newStartedBot(t, be, store)
			require.Len(t, cb.Snapshot(), 4)

			require.NoError(t, cb.Reset(ctx))

			assert.Empty(t, cb.Snapshot())
			assert.Equal(t, Status{State: StateIdle}, cb.Status())

			cb.Wait()
			assert.False(t, store.Exists(), "durable record is removed, not rewritten")
			assert.Equal(t, 1, be.clears())
		})
	}
}

func TestResetClearsErrorStatus(t *testing.T) {
	ctx := context.Background()
	cb := newStartedBot(t, &fakeBackend{sendErr: statusError}, storage.NewMemoryStore())

	require.Error(t, cb.Submit(ctx, "Hello"))
	require.NoError(t, cb.Reset(ctx))
	assert.Equal(t, Status{State: StateIdle}, cb.Status())
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()

	first := newStartedBot(t, &fakeBackend{}, store)
	require.NoError(t, first.Submit(ctx, "Hello"))
	require.NoError(t, first.Submit(ctx, "How are you?"))
	first.Wait()
	want := first.Snapshot()

	second := newStartedBot(t, &fakeBackend{}, store)
	assert.Equal(t, want, second.Snapshot())
}

func TestHydrationIsNotWrittenBack(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	require.NoError(t, store.Save(ctx, pairs("q", "a")))
	savesBefore := store.Saves()

	cb := newStartedBot(t, &fakeBackend{}, store)
	cb.Wait()

	assert.Equal(t, pairs("q", "a"), cb.Snapshot())
	assert.Equal(t, savesBefore, store.Saves())

	require.NoError(t, cb.Submit(ctx, "next"))
	cb.Wait()
	assert.Equal(t, savesBefore+1, store.Saves())
}

func TestIndependentInstancesSkipTheirOwnFirstChange(t *testing.T) {
	ctx := context.Background()
	storeA := storage.NewMemoryStore()
	storeB := storage.NewMemoryStore()

	a := newStartedBot(t, &fakeBackend{}, storeA)
	require.NoError(t, a.Submit(ctx, "hello"))
	a.Wait()

	b := newStartedBot(t, &fakeBackend{}, storeB)
	b.Wait()

	assert.Equal(t, 1, storeA.Saves())
	assert.Zero(t, storeB.Saves())
}

func TestMalformedStorageStartsEmpty(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStoreWithRaw("{oops")

	cb := newStartedBot(t, &fakeBackend{replies: []string{"Hi"}}, store)
	assert.Empty(t, cb.Snapshot())

	require.NoError(t, cb.Submit(ctx, "Hello"))
	cb.Wait()

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, pairs("Hello", "Hi"), stored)
}

func TestResetDuringSend(t *testing.T) {
	ctx := context.Background()

	for name, ignoreCancel := range map[string]bool{
		"send is cancelled":             false,
		"reply arrives after the reset": true,
	} {
		t.Run(name, func(t *testing.T) {
			be := &fakeBackend{}
			be.blocking(ignoreCancel)
			store := storage.NewMemoryStore()
			cb := newStartedBot(t, be, store)

			done := make(chan error, 1)
			go func() {
				done <- cb.Submit(ctx, "late")
			}()
			<-be.started

			require.NoError(t, cb.Reset(ctx))
			if ignoreCancel {
				close(be.release)
			}

			select {
			case err := <-done:
				assert.ErrorIs(t, err, ErrReplyDiscarded)
			case <-time.After(5 * time.Second):
				t.Fatal("submit did not return")
			}

			assert.Empty(t, cb.Snapshot())
			assert.Equal(t, Status{State: StateIdle}, cb.Status())
			cb.Wait()
			assert.False(t, store.Exists())
		})
	}
}

func TestSubmitAfterResetDuringSend(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{}
	be.blocking(true)
	cb := newStartedBot(t, be, storage.NewMemoryStore())

	done := make(chan error, 1)
	go func() {
		done <- cb.Submit(ctx, "old")
	}()
	<-be.started
	require.NoError(t, cb.Reset(ctx))

	be.mu.Lock()
	release := be.release
	be.started, be.release = nil, nil
	be.mu.Unlock()
	require.NoError(t, cb.Submit(ctx, "new"))

	close(release)
	assert.ErrorIs(t, <-done, ErrReplyDiscarded)
	assert.Equal(t, pairs("new", "reply to new"), cb.Snapshot())
}

func TestSubmitDuringHydration(t *testing.T) {
	ctx := context.Background()
	store := newGatedStore(true, false)
	require.NoError(t, store.MemoryStore.Save(ctx, pairs("old q", "old a")))

	cb, err := NewChatBot(Deps{Backend: &fakeBackend{}, Storage: store, Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(cb.Wait)

	started := make(chan error, 1)
	go func() {
		started <- cb.Start(ctx)
	}()
	<-store.loadStarted

	assert.ErrorIs(t, cb.Submit(ctx, "new q"), ErrNotStarted)
	assert.Empty(t, cb.Snapshot())

	close(store.loadGate)
	require.NoError(t, <-started)
	require.NoError(t, cb.Submit(ctx, "new q"))

	want := pairs("old q", "old a", "new q", "reply to new q")
	assert.Equal(t, want, cb.Snapshot())

	cb.Wait()
	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, stored)
}

func TestStartTwiceLoadsOnce(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	cb := newStartedBot(t, &fakeBackend{}, store)
	require.NoError(t, cb.Submit(ctx, "hello"))

	require.NoError(t, cb.Start(ctx))
	assert.Len(t, cb.Snapshot(), 2, "a second Start keeps the live log")
}

func TestWritesFollowChangeOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("pending save does not restore a cleared log", func(t *testing.T) {
		store := newGatedStore(false, true)
		cb := newStartedBot(t, &fakeBackend{}, store)

		require.NoError(t, cb.Submit(ctx, "old"))
		<-store.saveStarted
		require.NoError(t, cb.Reset(ctx))

		close(store.saveGate)
		cb.Wait()

		assert.Empty(t, cb.Snapshot())
		assert.False(t, store.Exists())
	})

	t.Run("submit after reset is stored", func(t *testing.T) {
		store := newGatedStore(false, true)
		cb := newStartedBot(t, &fakeBackend{}, store)

		require.NoError(t, cb.Submit(ctx, "old"))
		<-store.saveStarted
		require.NoError(t, cb.Reset(ctx))
		require.NoError(t, cb.Submit(ctx, "new"))

		close(store.saveGate)
		cb.Wait()

		stored, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, pairs("new", "reply to new"), stored)
		assert.Equal(t, cb.Snapshot(), stored)
	})
}

func TestResetRemoteClearIsBounded(t *testing.T) {
	ctx := context.Background()
	be := &fakeBackend{clearHangs: true}
	cb, err := NewChatBot(Deps{
		Backend:      be,
		Storage:      storage.NewMemoryStore(),
		Logger:       discardLogger(),
		ClearTimeout: 20 * time.Millisecond,
	})
	require.NoError(t, err)
	require.NoError(t, cb.Start(ctx))

	require.NoError(t, cb.Reset(ctx))

	waited := make(chan struct{})
	go func() {
		cb.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("remote clear did not time out")
	}
	assert.Equal(t, 1, be.clears())
}
