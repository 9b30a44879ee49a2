package live

import (
	"strings"
	"time"
)

// transcriptAssembler accumulates transcription deltas for the current turn,
// one buffer per speaker.
//
// It is owned by the session goroutine and is not safe for concurrent use.
type transcriptAssembler struct {
	user      []string
	assistant []string
}

func (t *transcriptAssembler) AppendUser(delta string) {
	t.user = append(t.user, delta)
}

func (t *transcriptAssembler) AppendAssistant(delta string) {
	t.assistant = append(t.assistant, delta)
}

func (t *transcriptAssembler) User() string      { return strings.Join(t.user, "") }
func (t *transcriptAssembler) Assistant() string { return strings.Join(t.assistant, "") }

// IsEmpty reports whether neither buffer holds any text.
func (t *transcriptAssembler) IsEmpty() bool {
	return strings.TrimSpace(t.User()) == "" && strings.TrimSpace(t.Assistant()) == ""
}

// Finalize drains both buffers into at most two messages, user first, and
// resets them. Whitespace-only buffers produce no message but are still
// cleared.
func (t *transcriptAssembler) Finalize(now time.Time) []Message {
	user := strings.TrimSpace(t.User())
	assistant := strings.TrimSpace(t.Assistant())
	t.user = nil
	t.assistant = nil

	messages := make([]Message, 0, 2)
	if user != "" {
		messages = append(messages, newMessage(SenderUser, user, now))
	}
	if assistant != "" {
		messages = append(messages, newMessage(SenderAssistant, assistant, now))
	}
	return messages
}
