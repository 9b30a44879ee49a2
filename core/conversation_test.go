package live

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
)

type fakeReplier struct {
	mu        sync.Mutex
	reply     string
	err       error
	block     chan struct{}
	histories [][]Message
}

func (r *fakeReplier) Reply(ctx context.Context, history []Message) (string, error) {
	r.mu.Lock()
	r.histories = append(r.histories, history)
	block := r.block
	r.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return r.reply, r.err
}

type fakeSynthesizer struct {
	speech audio.Chunk
	err    error
}

func (s *fakeSynthesizer) Synthesize(context.Context, string) (audio.Chunk, error) {
	return s.speech, s.err
}

type fakeDocumentExtractor struct {
	fields   map[string]string
	mimeType string
}

func (e *fakeDocumentExtractor) ExtractDocument(_ context.Context, _ []byte, mimeType string) (map[string]string, error) {
	e.mimeType = mimeType
	return e.fields, nil
}

type conversationHarness struct {
	conversation *Conversation
	microphone   *fakeMicrophone
	transport    *fakeTransport
	speaker      *fakeSpeaker
	replier      *fakeReplier
	synthesizer  *fakeSynthesizer
	extractor    *fakeExtractor
	recorder     *callbackRecorder
}

func newConversationHarness(t *testing.T, opts ...Option) *conversationHarness {
	t.Helper()

	h := &conversationHarness{
		microphone:  &fakeMicrophone{},
		transport:   &fakeTransport{},
		speaker:     newFakeSpeaker(),
		replier:     &fakeReplier{reply: "Your current rate is 4.2%."},
		synthesizer: &fakeSynthesizer{speech: silentChunk(0, 800*time.Millisecond)},
		extractor:   &fakeExtractor{fields: map[string]string{"intent": "rate_inquiry"}},
		recorder:    &callbackRecorder{},
	}

	allOpts := []Option{
		WithMicrophone(h.microphone),
		WithTransport(h.transport),
		WithSpeaker(h.speaker),
		WithTextReplier(h.replier),
		WithSpeechSynthesizer(h.synthesizer),
		WithExtractor(h.extractor),
		WithFrameSamples(4),
	}
	allOpts = append(allOpts, h.recorder.options()...)
	allOpts = append(allOpts, opts...)

	h.conversation = NewConversation(allOpts...)
	t.Cleanup(h.conversation.Close)
	return h
}

func TestSendTextRunsOneTurn(t *testing.T) {
	h := newConversationHarness(t)

	reply, err := h.conversation.SendText(context.Background(), "  What is my rate?  ")
	if err != nil {
		t.Fatalf("expected text turn to succeed, got %v", err)
	}
	if reply.Sender != SenderAssistant || reply.Text != "Your current rate is 4.2%." {
		t.Fatalf("expected assistant reply, got %+v", reply)
	}

	messages := h.conversation.Messages()
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Sender != SenderUser || messages[0].Text != "What is my rate?" {
		t.Fatalf("expected trimmed user message first, got %+v", messages[0])
	}

	h.replier.mu.Lock()
	history := h.replier.histories[0]
	h.replier.mu.Unlock()
	if len(history) != 1 || history[0].ID != messages[0].ID {
		t.Fatalf("expected the reply to see the user message, got %+v", history)
	}

	scheduled := h.speaker.scheduled()
	if len(scheduled) != 1 {
		t.Fatalf("expected the reply to be played as one buffer, got %d", len(scheduled))
	}
	if !scheduled[0].startAt.Equal(h.speaker.Now()) {
		t.Fatalf("expected playback to start now")
	}

	h.recorder.mu.Lock()
	defer h.recorder.mu.Unlock()
	if len(h.recorder.fields) != 1 || h.recorder.fields[0]["intent"] != "rate_inquiry" {
		t.Fatalf("expected extracted fields callback, got %v", h.recorder.fields)
	}
	if len(h.recorder.messages) != 2 {
		t.Fatalf("expected 2 message callbacks, got %d", len(h.recorder.messages))
	}
}

func TestSendTextKeepsReplyWhenSynthesisFails(t *testing.T) {
	h := newConversationHarness(t)
	h.synthesizer.err = errors.New("voice unavailable")

	reply, err := h.conversation.SendText(context.Background(), "hello")
	if !errors.Is(err, ErrSynthesisFailed) {
		t.Fatalf("expected ErrSynthesisFailed, got %v", err)
	}
	if reply.Text == "" {
		t.Fatalf("expected the reply to be returned with the error")
	}
	if got := len(h.conversation.Messages()); got != 2 {
		t.Fatalf("expected both messages to be kept, got %d", got)
	}
	if got := len(h.speaker.scheduled()); got != 0 {
		t.Fatalf("expected nothing to be played, got %d", got)
	}
}

func TestSendTextReplyFailure(t *testing.T) {
	h := newConversationHarness(t)
	h.replier.err = errors.New("upstream timeout")

	if _, err := h.conversation.SendText(context.Background(), "hello"); err == nil {
		t.Fatalf("expected reply failure")
	}
	if h.conversation.TextTurnInFlight() {
		t.Fatalf("expected the text turn to be over")
	}
}

func TestSendTextRejectedWhileLive(t *testing.T) {
	h := newConversationHarness(t)
	h.transport.block = make(chan struct{})

	if err := h.conversation.StartLive(context.Background()); err != nil {
		t.Fatalf("expected live to start, got %v", err)
	}
	if _, err := h.conversation.SendText(context.Background(), "hello"); !errors.Is(err, ErrLiveActive) {
		t.Fatalf("expected ErrLiveActive while connecting, got %v", err)
	}

	if err := h.conversation.StopLive(context.Background()); err != nil {
		t.Fatalf("expected live to stop, got %v", err)
	}
	if _, err := h.conversation.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("expected text to work after stopping live, got %v", err)
	}
}

func TestStartLiveRejectedDuringTextTurn(t *testing.T) {
	h := newConversationHarness(t)
	h.replier.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := h.conversation.SendText(context.Background(), "hello")
		done <- err
	}()
	waitForCondition(t, time.Second, "text turn in flight", h.conversation.TextTurnInFlight)

	if err := h.conversation.StartLive(context.Background()); !errors.Is(err, ErrTextTurnInFlight) {
		t.Fatalf("expected ErrTextTurnInFlight, got %v", err)
	}
	if _, err := h.conversation.SendText(context.Background(), "again"); !errors.Is(err, ErrTextTurnInFlight) {
		t.Fatalf("expected concurrent text turn to be rejected, got %v", err)
	}
	if h.microphone.openCount() != 0 {
		t.Fatalf("expected the microphone to stay closed")
	}

	close(h.replier.block)
	if err := <-done; err != nil {
		t.Fatalf("expected text turn to finish, got %v", err)
	}
	if err := h.conversation.StartLive(context.Background()); err != nil {
		t.Fatalf("expected live to start after the text turn, got %v", err)
	}
}

func TestStateCallbackCanSendTextWhileStarting(t *testing.T) {
	var conversation *Conversation
	sendErr := make(chan error, 1)
	h := newConversationHarness(t, WithStateChangedCallback(func(_, to State) {
		if to == StateConnecting {
			_, err := conversation.SendText(context.Background(), "hello")
			sendErr <- err
		}
	}))
	conversation = h.conversation

	started := make(chan error, 1)
	go func() { started <- conversation.StartLive(context.Background()) }()

	select {
	case err := <-started:
		if err != nil {
			t.Fatalf("expected live to start, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected StartLive to return while a callback used the conversation")
	}

	if err := <-sendErr; !errors.Is(err, ErrLiveActive) {
		t.Fatalf("expected ErrLiveActive from the callback, got %v", err)
	}
	if len(conversation.Messages()) != 0 {
		t.Fatalf("expected no text turn to run, got %+v", conversation.Messages())
	}
}

func TestStartLiveStopsTextPlayback(t *testing.T) {
	h := newConversationHarness(t)

	if _, err := h.conversation.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("expected text turn to succeed, got %v", err)
	}
	if err := h.conversation.StartLive(context.Background()); err != nil {
		t.Fatalf("expected live to start, got %v", err)
	}

	if !h.speaker.scheduled()[0].playback.stopped.Load() {
		t.Fatalf("expected text reply playback to be stopped")
	}
}

func TestSendTextRejectsEmptyInput(t *testing.T) {
	h := newConversationHarness(t)

	if _, err := h.conversation.SendText(context.Background(), "   "); !errors.Is(err, ErrEmptyInput) {
		t.Fatalf("expected ErrEmptyInput, got %v", err)
	}
	if len(h.conversation.Messages()) != 0 {
		t.Fatalf("expected no messages")
	}
}

func TestLiveAndTextShareMessageLog(t *testing.T) {
	h := newConversationHarness(t)

	if _, err := h.conversation.SendText(context.Background(), "hello"); err != nil {
		t.Fatalf("expected text turn to succeed, got %v", err)
	}
	if len(h.conversation.Session().Messages()) != 2 {
		t.Fatalf("expected the session to see text messages")
	}
}

func TestExtractDocument(t *testing.T) {
	extractor := &fakeDocumentExtractor{fields: map[string]string{"employer": "Acme"}}
	h := newConversationHarness(t, WithDocumentExtractor(extractor))

	fields, err := h.conversation.ExtractDocument(context.Background(), []byte("%PDF"), "application/pdf")
	if err != nil {
		t.Fatalf("expected extraction to succeed, got %v", err)
	}
	if fields["employer"] != "Acme" {
		t.Fatalf("expected employer field, got %v", fields)
	}
	if extractor.mimeType != "application/pdf" {
		t.Fatalf("expected mime type to be forwarded, got %q", extractor.mimeType)
	}
}

func TestExtractDocumentNotConfigured(t *testing.T) {
	h := newConversationHarness(t)

	if _, err := h.conversation.ExtractDocument(context.Background(), nil, "image/png"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestConversationClosed(t *testing.T) {
	h := newConversationHarness(t)
	h.conversation.Close()

	if _, err := h.conversation.SendText(context.Background(), "hello"); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from SendText, got %v", err)
	}
	if err := h.conversation.StartLive(context.Background()); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed from StartLive, got %v", err)
	}
}
