package groq

import (
	"fmt"

	"github.com/jinzhu/copier"
	live "github.com/koscakluka/ema-live/core"
)

type message struct {
	Role    messageRole `json:"role" copier:"Sender"`
	Content string      `json:"content" copier:"Text"`
}

type messageRole string

const (
	messageRoleSystem    messageRole = "system"
	messageRoleUser      messageRole = "user"
	messageRoleAssistant messageRole = "assistant"
)

// toMessages maps conversation history onto chat messages, prefixed with
// the system instructions when there are any. Sender values match the chat
// roles one to one.
func toMessages(instructions string, history []live.Message) ([]message, error) {
	messages := []message{}
	if instructions != "" {
		messages = append(messages, message{
			Role:    messageRoleSystem,
			Content: instructions,
		})
	}

	var turns []message
	if err := copier.Copy(&turns, history); err != nil {
		return nil, fmt.Errorf("error converting history: %w", err)
	}

	return append(messages, turns...), nil
}
