package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/sourcegraph/conc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"SupportChat/internal/backend"
	"SupportChat/internal/locale"
	"SupportChat/internal/session"
	"SupportChat/internal/storage"
)

var (
	ErrEmptyInput     = errors.New("empty input")
	ErrSendInFlight   = errors.New("a message is already being sent")
	ErrReplyDiscarded = errors.New("reply arrived after the chat was reset")
	ErrNotStarted     = errors.New("chatbot not started")
)

const defaultClearTimeout = 30 * time.Second

// Backend is the remote side of the conversation
type Backend interface {
	SendText(ctx context.Context, text string) (backend.Reply, error)
	ClearHistory(ctx context.Context) (string, error)
}

type Deps struct {
	Backend  Backend
	Storage  storage.Store
	Logger   *slog.Logger
	Meter    metric.Meter
	Language locale.Language

	// ClearTimeout bounds the background remote clear; zero means 30s
	ClearTimeout time.Duration
}

// ChatBot owns the conversation: it drives sends against the backend,
// keeps the log and mirrors it to storage.
type ChatBot struct {
	backend  Backend
	storage  storage.Store
	logger   *slog.Logger
	language locale.Language

	clearTimeout time.Duration

	log        *session.Store
	persister  *persister
	background conc.WaitGroup

	// logMu serializes generation checks with log mutations
	logMu sync.Mutex

	mu         sync.Mutex
	started    bool
	status     Status
	input      string
	generation uint64
	cancelSend context.CancelFunc

	submits metric.Int64Counter
	resets  metric.Int64Counter
}

// NewChatBot creates a new ChatBot instance; call Start before use
func NewChatBot(deps Deps) (*ChatBot, error) {
	if deps.Backend == nil {
		return nil, fmt.Errorf("backend cannot be nil")
	}
	if deps.Storage == nil {
		return nil, fmt.Errorf("storage cannot be nil")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Meter == nil {
		deps.Meter = otel.Meter("supportchat/chatbot")
	}
	if deps.Language == "" {
		deps.Language = locale.Eng
	}
	if deps.ClearTimeout <= 0 {
		deps.ClearTimeout = defaultClearTimeout
	}

	submits, err := deps.Meter.Int64Counter(
		"chat.submit.total",
		metric.WithDescription("Messages submitted to the backend by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create submit counter: %w", err)
	}
	resets, err := deps.Meter.Int64Counter(
		"chat.reset.total",
		metric.WithDescription("Chat resets"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create reset counter: %w", err)
	}

	cb := &ChatBot{
		backend:      deps.Backend,
		storage:      deps.Storage,
		logger:       deps.Logger,
		language:     deps.Language,
		clearTimeout: deps.ClearTimeout,
		log:          session.NewStore(),
		status:       Status{State: StateIdle},
		submits:      submits,
		resets:       resets,
	}
	cb.persister = newPersister(deps.Storage, deps.Logger, &cb.background)
	cb.log.Subscribe(cb.persister.onChange)
	return cb, nil
}

// Start loads the stored conversation. A missing or unreadable record
// starts an empty conversation. Submit returns ErrNotStarted until the
// stored log is installed; Reset waits for it.
func (cb *ChatBot) Start(ctx context.Context) error {
	cb.logMu.Lock()
	defer cb.logMu.Unlock()

	cb.mu.Lock()
	started := cb.started
	cb.mu.Unlock()
	if started {
		return nil
	}

	stored, err := cb.storage.Load(ctx)
	if err != nil {
		cb.logger.Error("failed to load conversation, starting empty", "error", err)
		stored = session.Log{}
	}
	cb.log.Replace(stored)

	cb.mu.Lock()
	cb.started = true
	cb.mu.Unlock()

	cb.logger.Info("conversation loaded", "turns", len(stored))
	return nil
}

// Subscribe registers fn to receive every change of the log
func (cb *ChatBot) Subscribe(fn func(session.Change)) {
	cb.log.Subscribe(fn)
}

// Snapshot returns the current log
func (cb *ChatBot) Snapshot() session.Log {
	return cb.log.Snapshot()
}

func (cb *ChatBot) Status() Status {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.status
}

func (cb *ChatBot) Input() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.input
}

func (cb *ChatBot) SetInput(text string) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.input = text
}

// SubmitInput submits the current input buffer
func (cb *ChatBot) SubmitInput(ctx context.Context) error {
	return cb.Submit(ctx, cb.Input())
}

// Submit sends text to the backend and appends the user/model pair on
// success. Blank text and submits while a send is in flight are ignored
// and reported with ErrEmptyInput and ErrSendInFlight.
func (cb *ChatBot) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyInput
	}

	cb.mu.Lock()
	if !cb.started {
		cb.mu.Unlock()
		return ErrNotStarted
	}
	if cb.status.State == StateSending {
		cb.mu.Unlock()
		return ErrSendInFlight
	}
	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	cb.status = Status{State: StateSending}
	cb.cancelSend = cancel
	generation := cb.generation
	cb.mu.Unlock()

	reply, err := cb.backend.SendText(sendCtx, text)

	cb.logMu.Lock()
	defer cb.logMu.Unlock()

	cb.mu.Lock()
	if cb.generation != generation {
		cb.mu.Unlock()
		cb.logger.Info("discarding reply for a reset chat", "error", err)
		cb.count(ctx, "stale")
		return ErrReplyDiscarded
	}
	cb.cancelSend = nil
	if err != nil {
		cb.status = Status{State: StateError, Message: locale.SendFailed.Text(cb.language)}
		cb.mu.Unlock()
		cb.logger.Error("failed to send message", "error", err)
		cb.count(ctx, "error")
		return err
	}
	cb.mu.Unlock()

	log := cb.log.Append(text, reply.Text)

	cb.mu.Lock()
	cb.status = Status{State: StateIdle}
	cb.input = ""
	cb.mu.Unlock()

	cb.logger.Info("message exchanged", "turns", len(log))
	cb.count(ctx, "ok")
	return nil
}

// Reset clears the conversation locally and removes the stored record,
// then asks the backend to clear its history in the background. Remote
// failures are only logged. A send still in flight is cancelled and its
// reply discarded.
func (cb *ChatBot) Reset(ctx context.Context) error {
	cb.logMu.Lock()
	cb.mu.Lock()
	if !cb.started {
		cb.mu.Unlock()
		cb.logMu.Unlock()
		return ErrNotStarted
	}
	cb.generation++
	if cb.cancelSend != nil {
		cb.cancelSend()
		cb.cancelSend = nil
	}
	cb.status = Status{State: StateIdle}
	cb.mu.Unlock()

	cb.log.Clear()
	cb.logMu.Unlock()

	cb.resets.Add(ctx, 1)
	cb.logger.Info("chat reset")

	remoteCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cb.clearTimeout)
	cb.background.Go(func() {
		defer cancel()
		msg, err := cb.backend.ClearHistory(remoteCtx)
		if err != nil {
			cb.logger.Warn("failed to clear remote chat history", "error", err)
			return
		}
		cb.logger.Info("remote chat history cleared", "message", msg)
	})
	return nil
}

// Wait blocks until pending storage writes and remote clears finish
func (cb *ChatBot) Wait() {
	cb.background.Wait()
}

func (cb *ChatBot) count(ctx context.Context, outcome string) {
	cb.submits.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
