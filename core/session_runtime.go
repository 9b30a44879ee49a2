package live

import (
	"context"
	"fmt"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
)

const sessionEventQueueCapacity = 64

// sessionEvent is anything the session goroutine reacts to. All mutation of
// session state happens while handling one of these.
type sessionEvent interface {
	sessionEvent()
}

type startRequest struct {
	ctx   context.Context
	reply chan error
}

type stopRequest struct {
	reply chan struct{}
}

type connectFinished struct {
	attempt *connectAttempt
}

type frameEncoded struct {
	gen   uint64
	frame audio.Frame
}

type captureFailed struct {
	gen uint64
	err error
}

type inboundReceived struct {
	gen   uint64
	event events.Inbound
}

type receiveFailed struct {
	gen uint64
	err error
}

type readyTimedOut struct {
	gen uint64
}

type playbackFinished struct {
	id string
}

type fieldsExtracted struct {
	source string
	fields map[string]string
}

type actorCall struct {
	fn   func()
	done chan struct{}
}

func (startRequest) sessionEvent()     {}
func (stopRequest) sessionEvent()      {}
func (connectFinished) sessionEvent()  {}
func (frameEncoded) sessionEvent()     {}
func (captureFailed) sessionEvent()    {}
func (inboundReceived) sessionEvent()  {}
func (receiveFailed) sessionEvent()    {}
func (readyTimedOut) sessionEvent()    {}
func (playbackFinished) sessionEvent() {}
func (fieldsExtracted) sessionEvent()  {}
func (actorCall) sessionEvent()        {}

func (s *Session) run() {
	defer close(s.done)

	for {
		select {
		case <-s.closeCh:
			s.shutdown()
			return
		case event := <-s.queue:
			s.handle(event)
		}
	}
}

// post queues event for the session goroutine. It gives up when ctx is done
// or the session is closed, so producers never outlive their owner.
func (s *Session) post(ctx context.Context, event sessionEvent) bool {
	if s.isClosed() {
		return false
	}

	select {
	case s.queue <- event:
		return true
	case <-ctx.Done():
		return false
	case <-s.closeCh:
		return false
	}
}

// call runs fn on the session goroutine and waits for it.
func (s *Session) call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !s.post(ctx, actorCall{fn: fn, done: done}) {
		if err := ctx.Err(); err != nil {
			return err
		}
		return ErrClosed
	}

	select {
	case <-done:
		return nil
	case <-s.done:
		return ErrClosed
	}
}

func (s *Session) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}

func (s *Session) handle(event sessionEvent) {
	switch event := event.(type) {
	case startRequest:
		event.reply <- s.start(event.ctx)
	case stopRequest:
		s.stop()
		close(event.reply)
	case connectFinished:
		s.handleConnectFinished(event.attempt)
	case frameEncoded:
		if event.gen == s.gen {
			s.handleFrame(event.frame)
		}
	case captureFailed:
		if event.gen == s.gen && s.State().IsActive() {
			s.fail(event.err, KindDeviceUnavailable)
		}
	case inboundReceived:
		if event.gen == s.gen && s.State().IsActive() {
			s.handleInbound(event.event)
		}
	case receiveFailed:
		if event.gen == s.gen && s.State().IsActive() {
			s.fail(event.err, KindConnectionLost)
		}
	case readyTimedOut:
		if event.gen == s.gen && s.State() == StateConnecting {
			s.fail(&SessionError{
				Kind: KindConnectionFailed,
				Err:  fmt.Errorf("%w within %s", ErrReadyTimeout, s.opts.readyTimeout),
			}, KindConnectionFailed)
		}
	case playbackFinished:
		s.scheduler.Finished(event.id)
	case fieldsExtracted:
		s.emit(events.NewFieldsExtracted(event.source, event.fields))
	case actorCall:
		event.fn()
		close(event.done)
	}
}

func (s *Session) shutdown() {
	if s.running {
		s.teardown("closed")
	}
	s.setState(StateClosed)
}

func sinceOrZero(t time.Time) time.Duration {
	if t.IsZero() {
		return 0
	}
	return time.Since(t)
}
