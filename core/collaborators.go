package live

import (
	"context"

	"github.com/koscakluka/ema-live/core/audio"
)

// TextReplier produces the assistant reply to a text conversation. history
// ends with the user message being replied to.
type TextReplier interface {
	Reply(ctx context.Context, history []Message) (string, error)
}

// SpeechSynthesizer turns reply text into one playable audio buffer.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string) (audio.Chunk, error)
}

// Extractor pulls structured fields out of free user text.
type Extractor interface {
	ExtractFields(ctx context.Context, text string) (map[string]string, error)
}

// DocumentExtractor pulls structured fields out of an uploaded document.
type DocumentExtractor interface {
	ExtractDocument(ctx context.Context, data []byte, mimeType string) (map[string]string, error)
}
