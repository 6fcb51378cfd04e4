package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"SupportChat/internal/backend"
	"SupportChat/internal/chatbot"
	"SupportChat/internal/config"
	"SupportChat/internal/locale"
	"SupportChat/internal/storage"
	"SupportChat/internal/telemetry"
	"SupportChat/internal/ui"
)

const renderWidth = 80

// App is the wired client: storage, backend and the chatbot on top of them
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	Bot     *chatbot.ChatBot
	closers []func()
}

// New initializes logging, telemetry, storage and the backend client and
// loads the stored conversation
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, logFile, err := telemetry.InitLogger(cfg.Log.Dir, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	a := &App{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { logFile.Close() })

	if cfg.Telemetry {
		cleanup, err := telemetry.InitTelemetry(ctx, cfg.Log.Dir)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		a.closers = append(a.closers, cleanup)
	}

	store, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}
	a.closers = append(a.closers, func() {
		if err := store.Close(); err != nil {
			logger.Error("failed to close storage", "error", err)
		}
	})

	client, err := backend.NewClient(cfg.BackendURL,
		backend.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
		backend.WithLogger(logger),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	bot, err := chatbot.NewChatBot(chatbot.Deps{
		Backend:  client,
		Storage:  store,
		Logger:   logger,
		Language: locale.Language(cfg.Language),
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create chatbot: %w", err)
	}
	if err := bot.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start chatbot: %w", err)
	}
	a.Bot = bot

	logger.Info("supportchat started",
		"backend_url", cfg.BackendURL,
		"storage", cfg.Storage.Driver,
		"language", cfg.Language,
	)
	return a, nil
}

func (a *App) renderer(out io.Writer) (*ui.Renderer, error) {
	return ui.NewRenderer(out, locale.Language(a.cfg.Language), ui.StyleAuto, renderWidth)
}

// Chat runs the interactive session until in is exhausted or ctx is done
func (a *App) Chat(ctx context.Context, in io.Reader, out io.Writer) error {
	renderer, err := a.renderer(out)
	if err != nil {
		return err
	}
	repl := ui.NewREPL(a.Bot, renderer, in, locale.Language(a.cfg.Language), a.logger)
	return repl.Run(ctx)
}

// History prints the stored conversation
func (a *App) History(out io.Writer) error {
	renderer, err := a.renderer(out)
	if err != nil {
		return err
	}
	renderer.Log(a.Bot.Snapshot())
	return nil
}

// Reset clears the conversation locally and remotely
func (a *App) Reset(ctx context.Context, out io.Writer) error {
	if err := a.Bot.Reset(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, locale.ChatCleared.Text(locale.Language(a.cfg.Language)))
	return nil
}

// Close waits for pending writes and releases resources in reverse order
func (a *App) Close() {
	if a.Bot != nil {
		a.Bot.Wait()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
