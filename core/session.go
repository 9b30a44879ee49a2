package live

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Session is one live voice conversation: it streams microphone audio to the
// remote service, plays the synthesized speech it sends back and assembles
// per-turn transcripts.
//
// All session state is owned by a single goroutine fed through a queue.
// Start and Stop can be called from any goroutine.
type Session struct {
	opts    options
	encoder audio.Encoder
	emit    eventEmitter

	baseContext context.Context
	cancelBase  context.CancelFunc

	queue     chan sessionEvent
	closeCh   chan struct{}
	done      chan struct{}
	closeOnce sync.Once

	state atomic.Int32

	// Everything below is owned by the session goroutine.
	id           string
	gen          uint64
	running      bool
	attempt      *connectAttempt
	capture      *CaptureHandle
	channel      Channel
	cancelReader context.CancelFunc
	readerDone   chan struct{}
	readyTimer   *time.Timer
	scheduler    *playbackScheduler
	transcript   transcriptAssembler
	preconnect   []audio.Frame
	chunkSeq     uint64
	openedAt     time.Time
	span         trace.Span
	lastErr      *SessionError
}

// SessionSnapshot is a consistent view of the session taken on the session
// goroutine.
type SessionSnapshot struct {
	ID                  string
	State               State
	PendingChunks       int
	PlaybackCursor      time.Time
	UserTranscript      string
	AssistantTranscript string
	LastError           *SessionError
}

func NewSession(opts ...Option) *Session {
	return newSession(newOptions(opts...))
}

func newSession(o options) *Session {
	frameSamples := o.frameSamples
	if frameSamples <= 0 {
		frameSamples = audio.DefaultFrameSamples
	}

	baseContext, cancelBase := context.WithCancel(context.Background())
	s := &Session{
		opts:        o,
		encoder:     audio.NewEncoder(audio.CaptureEncodingInfo(), frameSamples),
		emit:        newCallbackEventEmitter(o),
		baseContext: baseContext,
		cancelBase:  cancelBase,
		queue:       make(chan sessionEvent, sessionEventQueueCapacity),
		closeCh:     make(chan struct{}),
		done:        make(chan struct{}),
		span:        trace.SpanFromContext(baseContext),
	}
	s.scheduler = newPlaybackScheduler(o.speaker, o.metrics, func(id string) {
		s.post(s.baseContext, playbackFinished{id: id})
	})

	go s.run()

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Messages returns the finalized messages of this session's log.
func (s *Session) Messages() []Message {
	return s.opts.messages.Messages()
}

// Start begins connecting: the microphone is acquired and the remote channel
// opened concurrently. It returns once the session is Connecting; the move to
// Open, or a failure, is reported through the registered callbacks.
//
// Start returns [ErrSessionActive] if a session is already connecting or open
// and [ErrClosed] after Close.
func (s *Session) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if !s.post(ctx, startRequest{ctx: ctx, reply: reply}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	}
}

// Stop tears the session down from any state. When it returns the microphone
// is released, the channel is closed, pending playback is cancelled and the
// state is Closed. Stopping a stopped session does nothing.
func (s *Session) Stop(ctx context.Context) error {
	reply := make(chan struct{})
	if !s.post(ctx, stopRequest{reply: reply}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		// Close already tore everything down.
		return nil
	}

	select {
	case <-reply:
	case <-s.done:
	}
	return nil
}

// Close stops the session and ends its goroutine. The session cannot be
// started again.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		<-s.done
		s.cancelBase()
	})
}

// Snapshot returns the session state as seen by the session goroutine.
func (s *Session) Snapshot(ctx context.Context) (SessionSnapshot, error) {
	var snapshot SessionSnapshot
	err := s.call(ctx, func() {
		snapshot = SessionSnapshot{
			ID:                  s.id,
			State:               s.State(),
			PendingChunks:       s.scheduler.Pending(),
			PlaybackCursor:      s.scheduler.Cursor(),
			UserTranscript:      s.transcript.User(),
			AssistantTranscript: s.transcript.Assistant(),
			LastError:           s.lastErr,
		}
	})
	return snapshot, err
}

func (s *Session) start(ctx context.Context) error {
	if state := s.State(); !state.canStart() {
		return fmt.Errorf("cannot start from %s: %w", state, ErrSessionActive)
	}

	s.gen++
	s.id = uuid.NewString()
	s.running = true
	s.lastErr = nil
	s.chunkSeq = 0
	s.openedAt = time.Time{}

	_, s.span = tracer.Start(context.WithoutCancel(ctx), "live session",
		trace.WithAttributes(attribute.String("session.id", s.id)))
	s.opts.metrics.RecordSessionStart()
	s.setState(StateConnecting)

	attemptCtx, cancel := context.WithCancel(trace.ContextWithSpan(s.baseContext, s.span))
	s.attempt = &connectAttempt{
		gen:    s.gen,
		cancel: cancel,
		result: make(chan connectResult, 1),
	}
	go s.connect(attemptCtx, s.attempt)

	if timeout := s.opts.readyTimeout; timeout > 0 {
		gen := s.gen
		s.readyTimer = time.AfterFunc(timeout, func() {
			s.post(s.baseContext, readyTimedOut{gen: gen})
		})
	}

	return nil
}

func (s *Session) stop() {
	switch s.State() {
	case StateClosed:
		return
	case StateIdle:
		s.setState(StateClosed)
		return
	}

	s.teardown("stopped")
}

func (s *Session) handleConnectFinished(attempt *connectAttempt) {
	if attempt != s.attempt {
		// Teardown already collected and released the result.
		return
	}

	result := <-attempt.result
	attempt.cancel()
	s.attempt = nil

	if result.err != nil {
		s.fail(result.err, KindConnectionFailed)
		return
	}

	s.capture = result.capture
	s.channel = result.channel

	readerCtx, cancelReader := context.WithCancel(s.baseContext)
	s.cancelReader = cancelReader
	s.readerDone = make(chan struct{})
	go s.receive(readerCtx, s.gen, s.channel, s.readerDone)

	s.span.AddEvent("connected")
}

// receive forwards inbound events of one channel until it fails, the remote
// side closes it or ctx is cancelled.
func (s *Session) receive(ctx context.Context, gen uint64, channel Channel, done chan struct{}) {
	defer close(done)

	for {
		event, err := channel.Receive(ctx)
		if err != nil {
			if ctx.Err() == nil {
				s.post(ctx, receiveFailed{gen: gen, err: err})
			}
			return
		}

		if !s.post(ctx, inboundReceived{gen: gen, event: event}) {
			return
		}
		if _, ok := event.(events.SessionClosed); ok {
			return
		}
	}
}

func (s *Session) handleFrame(frame audio.Frame) {
	switch s.State() {
	case StateOpen:
		s.send(frame)
	case StateConnecting:
		if s.opts.preconnectFrames <= 0 {
			s.opts.metrics.RecordFrameDropped()
			return
		}
		if len(s.preconnect) >= s.opts.preconnectFrames {
			s.preconnect = s.preconnect[1:]
			s.opts.metrics.RecordFrameDropped()
		}
		s.preconnect = append(s.preconnect, frame)
	default:
		s.opts.metrics.RecordFrameDropped()
	}
}

func (s *Session) send(frame audio.Frame) {
	if err := s.channel.Send(frame); err != nil {
		s.fail(fmt.Errorf("failed to send frame %d: %w", frame.Seq, err), KindConnectionLost)
		return
	}
	s.opts.metrics.RecordFrameSent()
}

func (s *Session) handleInbound(event events.Inbound) {
	s.emit(event)

	switch event := event.(type) {
	case events.SessionReady:
		if s.State() != StateConnecting {
			return
		}
		s.stopReadyTimer()
		s.openedAt = time.Now()
		s.setState(StateOpen)

		frames := s.preconnect
		s.preconnect = nil
		for _, frame := range frames {
			if s.State() != StateOpen {
				return
			}
			s.send(frame)
		}

	case events.AudioDelta:
		s.chunkSeq++
		chunk, err := audio.DecodeChunk(s.chunkSeq, event.Data, audio.PlaybackEncodingInfo())
		if err != nil {
			s.fail(err, KindDecodeFailed)
			return
		}
		if _, err := s.scheduler.Enqueue(chunk); err != nil {
			logger.Warn("failed to schedule speech chunk", "seq", chunk.Seq, "error", err)
		}

	case events.InputTranscript:
		s.transcript.AppendUser(event.Text)

	case events.OutputTranscript:
		s.transcript.AppendAssistant(event.Text)

	case events.TurnComplete:
		s.opts.metrics.RecordTurnCompleted()
		s.finalizeTurn()

	case events.Interrupted:
		cancelled := s.scheduler.Interrupt()
		s.opts.metrics.RecordInterruption()
		s.span.AddEvent("interrupted", trace.WithAttributes(attribute.Int("playback.cancelled_chunks", cancelled)))

	case events.SessionClosed:
		s.setState(StateClosing)
		s.teardown("remote_closed")

	case events.SessionError:
		s.fail(fmt.Errorf("remote session error: %s", event.Detail), KindConnectionLost)
	}
}

// finalizeTurn drains the transcript buffers into the message log. Finalized
// user text is handed to the extractor in the background.
func (s *Session) finalizeTurn() {
	messages := s.transcript.Finalize(time.Now())
	if len(messages) == 0 {
		return
	}

	s.opts.messages.Append(messages...)
	for _, message := range messages {
		s.opts.metrics.RecordMessage(string(message.Sender))
		s.emit(messageFinalizedEvent(message))
		if message.Sender == SenderUser {
			s.extract(message)
		}
	}
}

func (s *Session) extract(message Message) {
	if s.opts.extractor == nil {
		return
	}

	extractor := s.opts.extractor
	goWorker(s.baseContext, "field extraction", func(ctx context.Context) error {
		fields, err := extractor.ExtractFields(ctx, message.Text)
		if err != nil {
			return err
		}
		if len(fields) > 0 {
			s.post(ctx, fieldsExtracted{source: message.ID, fields: fields})
		}
		return nil
	})
}

// fail moves the session through Errored and tears it down.
func (s *Session) fail(err error, fallback ErrorKind) {
	sessionErr := classify(err, fallback)
	s.lastErr = sessionErr

	s.span.RecordError(sessionErr)
	s.span.SetStatus(codes.Error, sessionErr.Error())
	logger.Error("live session failed", "session_id", s.id, "kind", string(sessionErr.Kind), "error", sessionErr.Err)
	s.opts.metrics.RecordError(string(sessionErr.Kind))

	s.setState(StateErrored)
	s.emit(events.NewFailure(string(sessionErr.Kind), sessionErr.UserMessage()))
	if s.opts.onError != nil {
		s.opts.onError(sessionErr)
	}

	s.teardown("errored")
}

// teardown releases everything the session holds and leaves it Closed. It is
// safe to call in any state.
func (s *Session) teardown(outcome string) {
	s.stopReadyTimer()
	if s.attempt != nil {
		s.attempt.cancel()
		result := <-s.attempt.result
		result.release()
		s.attempt = nil
	}

	if s.cancelReader != nil {
		s.cancelReader()
		s.cancelReader = nil
	}
	if s.capture != nil {
		if err := s.capture.Stop(); err != nil {
			logger.Warn("failed to release microphone", "session_id", s.id, "error", err)
		}
		s.capture = nil
	}
	if s.channel != nil {
		if err := s.channel.Close(); err != nil {
			logger.Warn("failed to close live channel", "session_id", s.id, "error", err)
		}
		s.channel = nil
	}
	if s.readerDone != nil {
		<-s.readerDone
		s.readerDone = nil
	}

	if cancelled := s.scheduler.Interrupt(); cancelled > 0 {
		s.span.AddEvent("playback cancelled", trace.WithAttributes(attribute.Int("playback.cancelled_chunks", cancelled)))
	}
	// A turn cut short still keeps what was said.
	s.finalizeTurn()
	s.preconnect = nil
	s.gen++

	if s.running {
		s.running = false
		s.opts.metrics.RecordSessionEnd(outcome, sinceOrZero(s.openedAt))
		s.span.SetAttributes(attribute.String("session.outcome", outcome))
		s.span.End()
	}

	s.setState(StateClosed)
}

func (s *Session) stopReadyTimer() {
	if s.readyTimer != nil {
		s.readyTimer.Stop()
		s.readyTimer = nil
	}
}

func (s *Session) setState(to State) {
	from := State(s.state.Swap(int32(to)))
	if from == to {
		return
	}

	s.span.AddEvent("state changed", trace.WithAttributes(
		attribute.String("session.state.from", from.String()),
		attribute.String("session.state.to", to.String()),
	))
	s.emit(stateChangedEvent(s.id, from, to))
}
