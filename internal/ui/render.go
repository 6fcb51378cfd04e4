package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"SupportChat/internal/locale"
	"SupportChat/internal/session"
)

const (
	StyleAuto  = "auto"
	StylePlain = "notty"
)

var (
	userLabelStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7D7D7D"))
	modelLabelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#483A9C"))
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#E06C75"))
	faintStyle      = lipgloss.NewStyle().Faint(true)
	titleStyle      = lipgloss.NewStyle().Bold(true)
)

// Renderer prints turns: user text as is, model text as markdown
type Renderer struct {
	out      io.Writer
	markdown *glamour.TermRenderer
	lang     locale.Language
}

// NewRenderer creates a renderer; style is StyleAuto or a glamour standard style name
func NewRenderer(out io.Writer, lang locale.Language, style string, width int) (*Renderer, error) {
	styleOpt := glamour.WithAutoStyle()
	if style != StyleAuto {
		styleOpt = glamour.WithStandardStyle(style)
	}
	md, err := glamour.NewTermRenderer(
		styleOpt,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	return &Renderer{out: out, markdown: md, lang: lang}, nil
}

func (r *Renderer) Turn(turn session.Turn) {
	switch turn.Role {
	case session.RoleModel:
		fmt.Fprintln(r.out, modelLabelStyle.Render(locale.ModelLabel.Text(r.lang)))
		fmt.Fprintln(r.out, r.Markdown(turn.Text()))
	default:
		fmt.Fprintln(r.out, userLabelStyle.Render(locale.UserLabel.Text(r.lang)))
		fmt.Fprintln(r.out, turn.Text())
		fmt.Fprintln(r.out)
	}
}

// Log prints every turn, or the empty-chat greeting
func (r *Renderer) Log(log session.Log) {
	if len(log) == 0 {
		fmt.Fprintln(r.out, titleStyle.Render(locale.EmptyChat.Text(r.lang)))
		fmt.Fprintln(r.out)
		return
	}
	for _, turn := range log {
		r.Turn(turn)
	}
}

// Markdown renders text, falling back to the raw text if rendering fails
func (r *Renderer) Markdown(text string) string {
	out, err := r.markdown.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n") + "\n"
}

func (r *Renderer) Title(title string) {
	fmt.Fprintln(r.out, titleStyle.Render(title))
}

func (r *Renderer) Error(message string) {
	fmt.Fprintln(r.out, errorStyle.Render(message))
	fmt.Fprintln(r.out)
}

func (r *Renderer) Faint(message string) {
	fmt.Fprintln(r.out, faintStyle.Render(message))
}

func (r *Renderer) Prompt() {
	fmt.Fprint(r.out, userLabelStyle.Render(locale.UserLabel.Text(r.lang)+": "))
}

func (r *Renderer) Line(message string) {
	fmt.Fprintln(r.out, message)
}
