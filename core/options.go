package live

import (
	"time"

	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/metrics"
)

const DefaultReadyTimeout = 15 * time.Second

// Option configures a [Session] or a [Conversation].
type Option func(*options)

type options struct {
	microphone Microphone
	speaker    Speaker
	transport  Transport
	metrics    *metrics.Metrics
	messages   *MessageLog

	frameSamples     int
	preconnectFrames int
	readyTimeout     time.Duration

	replier           TextReplier
	synthesizer       SpeechSynthesizer
	extractor         Extractor
	documentExtractor DocumentExtractor

	onStateChanged    func(from, to State)
	onMessage         func(message Message)
	onFieldsExtracted func(source string, fields map[string]string)
	onError           func(err *SessionError)
	onEvent           func(event events.Event)
}

func newOptions(opts ...Option) options {
	o := options{readyTimeout: DefaultReadyTimeout}
	for _, opt := range opts {
		opt(&o)
	}
	if o.messages == nil {
		o.messages = NewMessageLog()
	}
	return o
}

func WithMicrophone(microphone Microphone) Option {
	return func(o *options) { o.microphone = microphone }
}

func WithSpeaker(speaker Speaker) Option {
	return func(o *options) { o.speaker = speaker }
}

func WithTransport(transport Transport) Option {
	return func(o *options) { o.transport = transport }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithMessageLog shares a message log between the live session and the text
// turn path.
func WithMessageLog(log *MessageLog) Option {
	return func(o *options) { o.messages = log }
}

// WithFrameSamples overrides the number of samples captured per frame.
func WithFrameSamples(samples int) Option {
	return func(o *options) { o.frameSamples = samples }
}

// WithPreconnectBuffer keeps up to frames captured frames while the session
// is connecting and flushes them, in capture order, once it opens. The most
// recent frames are kept when the buffer overflows.
//
// By default frames captured before the session opens are dropped.
func WithPreconnectBuffer(frames int) Option {
	return func(o *options) { o.preconnectFrames = frames }
}

// WithReadyTimeout bounds how long a session waits in Connecting for the
// remote service to report it is ready. Zero waits indefinitely.
func WithReadyTimeout(timeout time.Duration) Option {
	return func(o *options) { o.readyTimeout = timeout }
}

func WithTextReplier(replier TextReplier) Option {
	return func(o *options) { o.replier = replier }
}

func WithSpeechSynthesizer(synthesizer SpeechSynthesizer) Option {
	return func(o *options) { o.synthesizer = synthesizer }
}

// WithExtractor sets the collaborator finalized user text is handed to.
func WithExtractor(extractor Extractor) Option {
	return func(o *options) { o.extractor = extractor }
}

func WithDocumentExtractor(extractor DocumentExtractor) Option {
	return func(o *options) { o.documentExtractor = extractor }
}

// WithStateChangedCallback registers a callback for live session state
// transitions.
//
// Callbacks run on the session goroutine. They must return quickly and must
// not call back into the session synchronously.
func WithStateChangedCallback(callback func(from, to State)) Option {
	return func(o *options) { o.onStateChanged = callback }
}

// WithMessageCallback registers a callback for every finalized message, live
// or text.
func WithMessageCallback(callback func(message Message)) Option {
	return func(o *options) { o.onMessage = callback }
}

// WithFieldsExtractedCallback registers a callback for structured data
// extracted from finalized user messages and documents.
func WithFieldsExtractedCallback(callback func(source string, fields map[string]string)) Option {
	return func(o *options) { o.onFieldsExtracted = callback }
}

// WithErrorCallback registers a callback for failures that ended a live
// session.
func WithErrorCallback(callback func(err *SessionError)) Option {
	return func(o *options) { o.onError = callback }
}

// WithEventCallback registers a callback receiving every event, including
// the raw inbound stream of the remote session.
func WithEventCallback(callback func(event events.Event)) Option {
	return func(o *options) { o.onEvent = callback }
}
