package live

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var ErrEmptyInput = errors.New("empty input")

// Conversation is the unit a user interacts with: one message list, at most
// one live session, and a text turn path for when live is off.
//
// Live and text input are mutually exclusive. Text cannot be sent while the
// live session is connecting or open, and live cannot start while a text turn
// is in flight.
//
// Live session callbacks run on the session goroutine. They may call SendText,
// which is rejected while live is active, but must not call StartLive,
// StopLive or Close synchronously.
type Conversation struct {
	opts    options
	session *Session
	emit    eventEmitter

	mu           sync.Mutex
	closed       bool
	liveStarting bool
	textPlayback Playback

	textTurnInFlight atomic.Bool
}

func NewConversation(opts ...Option) *Conversation {
	o := newOptions(opts...)
	return &Conversation{
		opts:    o,
		session: newSession(o),
		emit:    newCallbackEventEmitter(o),
	}
}

// Session returns the live session owned by the conversation.
func (c *Conversation) Session() *Session { return c.session }

func (c *Conversation) LiveState() State { return c.session.State() }

// Messages returns the finalized messages of both the live and text paths in
// the order they were finalized.
func (c *Conversation) Messages() []Message { return c.opts.messages.Messages() }

// TextTurnInFlight reports whether a text turn is waiting on its reply.
func (c *Conversation) TextTurnInFlight() bool { return c.textTurnInFlight.Load() }

// StartLive starts the live session. Any audio still playing from a text
// reply is stopped first.
func (c *Conversation) StartLive(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.textTurnInFlight.Load() {
		c.mu.Unlock()
		return ErrTextTurnInFlight
	}
	if c.liveStarting {
		c.mu.Unlock()
		return ErrSessionActive
	}
	c.liveStarting = true
	c.stopTextPlayback()
	c.mu.Unlock()

	// mu is not held here: Start waits on the session goroutine, which runs
	// the state callbacks.
	err := c.session.Start(ctx)

	c.mu.Lock()
	c.liveStarting = false
	c.mu.Unlock()
	return err
}

// StopLive stops the live session and returns to text mode.
func (c *Conversation) StopLive(ctx context.Context) error {
	return c.session.Stop(ctx)
}

// SendText runs one text turn: the reply to text is requested with the full
// history, then extraction of text and synthesis of the reply run
// concurrently. The assistant message is appended even if synthesis fails, in
// which case the returned error wraps [ErrSynthesisFailed].
//
// Callbacks triggered by a text turn run on the calling goroutine.
func (c *Conversation) SendText(ctx context.Context, text string) (Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Message{}, ErrEmptyInput
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return Message{}, ErrClosed
	}
	if c.liveStarting || c.session.State().IsActive() {
		c.mu.Unlock()
		return Message{}, ErrLiveActive
	}
	if !c.textTurnInFlight.CompareAndSwap(false, true) {
		c.mu.Unlock()
		return Message{}, ErrTextTurnInFlight
	}
	c.mu.Unlock()
	defer c.textTurnInFlight.Store(false)

	return c.runTextTurn(ctx, text)
}

func (c *Conversation) runTextTurn(ctx context.Context, text string) (Message, error) {
	ctx, span := tracer.Start(ctx, "text turn")
	defer span.End()

	if c.opts.replier == nil {
		err := fmt.Errorf("text replier %w", ErrNotConfigured)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Message{}, err
	}

	userMessage := newMessage(SenderUser, text, time.Now())
	c.appendMessage(userMessage)

	reply, err := c.opts.replier.Reply(ctx, c.opts.messages.Messages())
	if err != nil {
		err = fmt.Errorf("failed to get text reply: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Message{}, err
	}

	var (
		fields    map[string]string
		speech    audio.Chunk
		synthErr  error
		extractor = c.opts.extractor
	)
	group := errgroup.Group{}
	if extractor != nil {
		group.Go(func() error {
			var err error
			fields, err = extractor.ExtractFields(ctx, text)
			if err != nil {
				logger.Warn("failed to extract fields from text turn", "error", err)
			}
			return nil
		})
	}
	if c.opts.synthesizer != nil {
		group.Go(func() error {
			synthErr = panicSafeNamedWorker("speech synthesis", func(ctx context.Context) error {
				var err error
				speech, err = c.opts.synthesizer.Synthesize(ctx, reply)
				return err
			})(ctx)
			return nil
		})
	}
	// Failures are kept per collaborator so one cannot cancel the other.
	_ = group.Wait()

	assistantMessage := newMessage(SenderAssistant, strings.TrimSpace(reply), time.Now())
	c.appendMessage(assistantMessage)
	if len(fields) > 0 {
		c.emit(events.NewFieldsExtracted(userMessage.ID, fields))
	}

	if synthErr != nil {
		sessionErr := &SessionError{Kind: KindSynthesisFailed, Err: synthErr}
		span.RecordError(sessionErr)
		span.SetStatus(codes.Error, sessionErr.Error())
		c.opts.metrics.RecordError(string(KindSynthesisFailed))
		return assistantMessage, sessionErr
	}

	if len(speech.Data) > 0 {
		if err := c.play(speech); err != nil {
			logger.Warn("failed to play text reply", "error", err)
		}
		span.SetAttributes(attribute.Int64("text_turn.speech_ms", speech.Duration().Milliseconds()))
	}

	return assistantMessage, nil
}

// ExtractDocument hands an uploaded document to the document extractor.
func (c *Conversation) ExtractDocument(ctx context.Context, data []byte, mimeType string) (map[string]string, error) {
	if c.opts.documentExtractor == nil {
		return nil, fmt.Errorf("document extractor %w", ErrNotConfigured)
	}

	ctx, span := tracer.Start(ctx, "extract document", trace.WithAttributes(
		attribute.String("document.mime_type", mimeType),
		attribute.Int("document.size", len(data)),
	))
	defer span.End()

	fields, err := c.opts.documentExtractor.ExtractDocument(ctx, data, mimeType)
	if err != nil {
		err = fmt.Errorf("failed to extract document: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	c.emit(events.NewFieldsExtracted(mimeType, fields))
	return fields, nil
}

// Close stops the live session and any text reply playback.
func (c *Conversation) Close() {
	c.mu.Lock()
	c.closed = true
	c.stopTextPlayback()
	c.mu.Unlock()

	c.session.Close()
}

func (c *Conversation) appendMessage(message Message) {
	c.opts.messages.Append(message)
	c.opts.metrics.RecordMessage(string(message.Sender))
	c.emit(messageFinalizedEvent(message))
}

// play starts a text reply as a single buffer, replacing whatever text reply
// was still playing.
func (c *Conversation) play(speech audio.Chunk) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.opts.speaker == nil {
		return fmt.Errorf("speaker %w", ErrNotConfigured)
	}
	if c.closed || c.liveStarting || c.session.State().IsActive() {
		return nil
	}

	c.stopTextPlayback()
	playback, err := c.opts.speaker.Schedule(speech, c.opts.speaker.Now(), nil)
	if err != nil {
		return err
	}
	c.textPlayback = playback
	return nil
}

// stopTextPlayback must be called with mu held.
func (c *Conversation) stopTextPlayback() {
	if c.textPlayback != nil {
		c.textPlayback.Stop()
		c.textPlayback = nil
	}
}
