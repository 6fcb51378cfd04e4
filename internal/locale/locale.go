package locale

import "fmt"

type Language string

const (
	Eng = Language("en")
	Spa = Language("es")
)

type Localization struct {
	language Language
	text     string
}

// TextSet is a user-facing string with optional translations
type TextSet struct {
	Default          string
	translationsText map[Language]string
}

func NewTrans(language Language, text string) Localization {
	return Localization{
		language: language,
		text:     text,
	}
}

func NewSet(defaultText string, localizations ...Localization) TextSet {
	set := TextSet{
		Default:          defaultText,
		translationsText: make(map[Language]string),
	}
	for _, localization := range localizations {
		set.translationsText[localization.language] = localization.text
	}
	return set
}

func (l TextSet) Text(language Language) string {
	if text, ok := l.translationsText[language]; ok {
		return text
	}
	return l.Default
}

func (l TextSet) Format(language Language, a ...any) string {
	return fmt.Sprintf(l.Text(language), a...)
}

var (
	SendFailed = NewSet(
		"There was a problem sending your message. Please try again.",
		NewTrans(Spa, "Hubo un problema al enviar tu mensaje. Por favor, intenta nuevamente."),
	)
	EmptyChat = NewSet(
		"How can I help you today?",
		NewTrans(Spa, "¿En qué puedo ayudarte hoy?"),
	)
	Disclaimer = NewSet(
		"The support bot can make mistakes. Consider checking important information.",
		NewTrans(Spa, "El bot de soporte puede cometer errores. Verifica la información importante."),
	)
	Thinking = NewSet(
		"Thinking...",
		NewTrans(Spa, "Pensando..."),
	)
	UserLabel = NewSet(
		"You",
		NewTrans(Spa, "Tú"),
	)
	ModelLabel = NewSet(
		"Support Bot",
		NewTrans(Spa, "Bot de soporte"),
	)
	ChatCleared = NewSet(
		"Chat cleared.",
		NewTrans(Spa, "Chat borrado."),
	)
	UnknownCommand = NewSet(
		"Unknown command %s. Type /help for the list of commands.",
		NewTrans(Spa, "Comando desconocido %s. Escribe /help para ver los comandos."),
	)
	Help = NewSet(
		"Available commands:\n  /reset    - Clear the conversation\n  /history  - Show the conversation again\n  /help     - Show this help message\n  /quit     - Exit",
		NewTrans(Spa, "Comandos disponibles:\n  /reset    - Borrar la conversación\n  /history  - Mostrar la conversación\n  /help     - Mostrar esta ayuda\n  /quit     - Salir"),
	)
	Goodbye = NewSet(
		"Goodbye!",
		NewTrans(Spa, "¡Hasta luego!"),
	)
)
