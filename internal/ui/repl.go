package ui

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"SupportChat/internal/chatbot"
	"SupportChat/internal/locale"
	"SupportChat/internal/session"
)

const (
	CommandReset   = "/reset"
	CommandHistory = "/history"
	CommandHelp    = "/help"
	CommandQuit    = "/quit"
	CommandExit    = "/exit"
)

// Session is the part of the chatbot the terminal needs
type Session interface {
	Snapshot() session.Log
	Status() chatbot.Status
	SetInput(text string)
	SubmitInput(ctx context.Context) error
	Reset(ctx context.Context) error
}

// REPL is the interactive terminal front end
type REPL struct {
	session  Session
	renderer *Renderer
	in       io.Reader
	lang     locale.Language
	logger   *slog.Logger
}

func NewREPL(s Session, renderer *Renderer, in io.Reader, lang locale.Language, logger *slog.Logger) *REPL {
	if logger == nil {
		logger = slog.Default()
	}
	return &REPL{
		session:  s,
		renderer: renderer,
		in:       in,
		lang:     lang,
		logger:   logger,
	}
}

// Run reads lines until EOF, /quit or ctx is done
func (r *REPL) Run(ctx context.Context) error {
	r.renderer.Title("=== Support Chat ===")
	r.renderer.Faint(locale.Disclaimer.Text(r.lang))
	r.renderer.Line("")
	r.renderer.Log(r.session.Snapshot())

	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	for {
		r.renderer.Prompt()

		var line string
		var ok bool
		select {
		case <-ctx.Done():
			r.renderer.Line("")
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			r.renderer.Line("")
			select {
			case err := <-scanErr:
				return err
			default:
				return nil
			}
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			if quit := r.handleCommand(ctx, input); quit {
				r.renderer.Line(locale.Goodbye.Text(r.lang))
				return nil
			}
			continue
		}

		r.send(ctx, line)
	}
}

func (r *REPL) send(ctx context.Context, line string) {
	before := len(r.session.Snapshot())
	r.session.SetInput(line)
	r.renderer.Faint(locale.Thinking.Text(r.lang))

	err := r.session.SubmitInput(ctx)
	switch {
	case err == nil:
		log := r.session.Snapshot()
		// the user already sees what they typed
		for _, turn := range log[min(before+1, len(log)):] {
			r.renderer.Turn(turn)
		}
	case errors.Is(err, chatbot.ErrEmptyInput),
		errors.Is(err, chatbot.ErrSendInFlight),
		errors.Is(err, chatbot.ErrReplyDiscarded):
		r.logger.Debug("submit ignored", "error", err)
	default:
		status := r.session.Status()
		if status.State == chatbot.StateError {
			r.renderer.Error(status.Message)
		} else {
			r.renderer.Error(locale.SendFailed.Text(r.lang))
		}
	}
}

func (r *REPL) handleCommand(ctx context.Context, cmd string) bool {
	parts := strings.Fields(cmd)

	switch parts[0] {
	case CommandQuit, CommandExit:
		return true

	case CommandReset:
		if err := r.session.Reset(ctx); err != nil {
			r.logger.Error("failed to reset chat", "error", err)
			r.renderer.Error(err.Error())
			return false
		}
		r.renderer.Faint(locale.ChatCleared.Text(r.lang))
		r.renderer.Log(r.session.Snapshot())

	case CommandHistory:
		r.renderer.Log(r.session.Snapshot())

	case CommandHelp:
		r.renderer.Line(locale.Help.Text(r.lang))

	default:
		r.renderer.Error(locale.UnknownCommand.Format(r.lang, parts[0]))
	}
	return false
}
