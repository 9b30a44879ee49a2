package live

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type Sender string

const (
	SenderUser      Sender = "user"
	SenderAssistant Sender = "assistant"
)

// Message is a finalized conversation entry. Messages are never mutated after
// creation.
type Message struct {
	ID        string
	Sender    Sender
	Text      string
	CreatedAt time.Time
}

func newMessage(sender Sender, text string, createdAt time.Time) Message {
	return Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: createdAt,
	}
}

// MessageLog is the append-only list of finalized messages, ordered by
// finalization.
type MessageLog struct {
	mu       sync.RWMutex
	messages []Message
}

func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

func (l *MessageLog) Append(messages ...Message) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.messages = append(l.messages, messages...)
}

// Messages returns a point-in-time copy of the log.
func (l *MessageLog) Messages() []Message {
	l.mu.RLock()
	defer l.mu.RUnlock()

	messages := make([]Message, len(l.messages))
	copy(messages, l.messages)
	return messages
}

