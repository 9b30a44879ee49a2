package live

import (
	"context"
	"fmt"

	"github.com/koscakluka/ema-live/core/audio"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
)

// connectAttempt is one in-flight acquisition of the microphone and the
// remote channel. Its result is delivered exactly once on result, which is
// buffered so the attempt never blocks on a session that stopped waiting.
type connectAttempt struct {
	gen    uint64
	cancel context.CancelFunc
	result chan connectResult
}

type connectResult struct {
	capture *CaptureHandle
	channel Channel
	err     error
}

func (r connectResult) release() {
	if r.capture != nil {
		if err := r.capture.Stop(); err != nil {
			logger.Warn("failed to release microphone", "error", err)
		}
	}
	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			logger.Warn("failed to close live channel", "error", err)
		}
	}
}

func (s *Session) connect(ctx context.Context, attempt *connectAttempt) {
	ctx, span := tracer.Start(ctx, "connect live session")
	defer span.End()

	gen := attempt.gen
	onFrame := func(ctx context.Context, frame audio.Frame) {
		s.post(ctx, frameEncoded{gen: gen, frame: frame})
	}
	onError := func(ctx context.Context, err error) {
		s.post(ctx, captureFailed{gen: gen, err: err})
	}

	result := connectResult{}
	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return panicSafeNamedWorker("microphone", func(ctx context.Context) error {
			capture, err := startCapture(ctx, s.opts.microphone, s.encoder, onFrame, onError)
			if err != nil {
				return err
			}
			result.capture = capture
			return nil
		})(groupCtx)
	})
	group.Go(func() error {
		return panicSafeNamedWorker("channel", func(ctx context.Context) error {
			if s.opts.transport == nil {
				return &SessionError{Kind: KindConnectionFailed, Err: fmt.Errorf("transport %w", ErrNotConfigured)}
			}
			channel, err := s.opts.transport.Connect(ctx)
			if err != nil {
				return classify(err, KindConnectionFailed)
			}
			result.channel = channel
			return nil
		})(groupCtx)
	})

	if err := group.Wait(); err != nil {
		result.release()
		result = connectResult{err: err}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	attempt.result <- result
	s.post(ctx, connectFinished{attempt: attempt})
}
