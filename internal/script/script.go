// Package script holds the conversation history sent to the vision service.
package script

import "strings"

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one message. User turns may carry an image as a data URI.
type Turn struct {
	Role     Role
	Text     string
	ImageURL string
}

// Script is an append-only sequence of turns. The zero value is empty and
// ready to use. Append never modifies the receiver, so a Script can be kept
// and shared while later turns are added to a copy.
type Script struct {
	turns []Turn
}

func New(turns ...Turn) Script {
	return Script{turns: append([]Turn(nil), turns...)}
}

func (s Script) Append(t Turn) Script {
	next := make([]Turn, len(s.turns), len(s.turns)+1)
	copy(next, s.turns)
	return Script{turns: append(next, t)}
}

func (s Script) Len() int { return len(s.turns) }

// Turns returns a copy of the history.
func (s Script) Turns() []Turn {
	return append([]Turn(nil), s.turns...)
}

func (s Script) AssistantTexts() []string {
	var out []string
	for _, t := range s.turns {
		if t.Role == RoleAssistant {
			out = append(out, t.Text)
		}
	}
	return out
}

// Narration joins all assistant turns with a single space.
func (s Script) Narration() string {
	return strings.Join(s.AssistantTexts(), " ")
}

// ImageDataURI wraps base64 JPEG data for an image turn.
func ImageDataURI(base64JPEG string) string {
	return "data:image/jpeg;base64," + base64JPEG
}
