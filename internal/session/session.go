package session

// Role identifies who produced a turn
type Role string

const (
	RoleUser  = Role("user")
	RoleModel = Role("model")
)

// Part is a single text fragment of a turn
type Part struct {
	Text string `json:"text"`
}

// Turn represents a single message of the conversation.
// The role/parts layout is the stored record format and must not change.
type Turn struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

// Log is the ordered conversation, oldest turn first
type Log []Turn

// NewTurn creates a turn holding a single text part
func NewTurn(role Role, text string) Turn {
	return Turn{
		Role:  role,
		Parts: []Part{{Text: text}},
	}
}

// Text returns the text of the first part
func (t Turn) Text() string {
	if len(t.Parts) == 0 {
		return ""
	}
	return t.Parts[0].Text
}

// Clone returns a copy that shares no slices with l
func (l Log) Clone() Log {
	out := make(Log, len(l))
	for i, turn := range l {
		parts := make([]Part, len(turn.Parts))
		copy(parts, turn.Parts)
		out[i] = Turn{Role: turn.Role, Parts: parts}
	}
	return out
}
