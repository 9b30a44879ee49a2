package live

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/koscakluka/ema-live/core/audio"
)

// Microphone opens capture streams delivering mono float32 samples in
// [-1, 1] at the capture sample rate.
//
// Open acquires the device. Errors should wrap [ErrPermissionDenied] or
// [ErrDeviceUnavailable]; anything else is reported as device unavailable.
type Microphone interface {
	Open(ctx context.Context) (CaptureStream, error)
}

// CaptureStream is an acquired microphone.
//
// Read blocks until at least one sample is available and returns io.EOF once
// the stream is closed. Close releases the device and unblocks Read; it is
// called exactly once.
type CaptureStream interface {
	Read(samples []float32) (int, error)
	Close() error
}

// CaptureHandle owns an open capture stream and the goroutine pulling frames
// from it.
type CaptureHandle struct {
	stream CaptureStream
	cancel context.CancelFunc
	done   chan struct{}

	stopping atomic.Bool
	stopOnce sync.Once
	stopErr  error
}

// startCapture acquires the microphone and starts pulling fixed size frames
// from it. Every complete frame is encoded on the capture goroutine and
// handed to onFrame in capture order. onError is called at most once, when
// the stream fails before Stop. Both receive a context that is cancelled as
// soon as Stop is called and must not block past it.
//
// The capture goroutine outlives ctx; it ends only through Stop or a stream
// failure.
func startCapture(
	ctx context.Context,
	microphone Microphone,
	encoder audio.Encoder,
	onFrame func(context.Context, audio.Frame),
	onError func(context.Context, error),
) (*CaptureHandle, error) {
	if microphone == nil {
		return nil, &SessionError{Kind: KindDeviceUnavailable, Err: fmt.Errorf("microphone %w", ErrNotConfigured)}
	}

	stream, err := microphone.Open(ctx)
	if err != nil {
		return nil, classify(err, KindDeviceUnavailable)
	}

	if encoder.FrameSamples <= 0 {
		encoder.FrameSamples = audio.DefaultFrameSamples
	}

	captureCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &CaptureHandle{
		stream: stream,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go handle.run(captureCtx, encoder, onFrame, onError)

	return handle, nil
}

func (h *CaptureHandle) run(ctx context.Context, encoder audio.Encoder, onFrame func(context.Context, audio.Frame), onError func(context.Context, error)) {
	defer close(h.done)
	defer func() {
		if recovered := recover(); recovered != nil {
			onError(ctx, &SessionError{Kind: KindDeviceUnavailable, Err: fmt.Errorf("capture worker panicked: %v", recovered)})
		}
	}()

	samples := make([]float32, encoder.FrameSamples)
	filled := 0
	var seq uint64
	for {
		n, err := h.stream.Read(samples[filled:])
		filled += n
		if filled == len(samples) {
			frame, encodeErr := encoder.Encode(seq, samples)
			if encodeErr != nil {
				logger.Warn("failed to encode captured frame", "seq", seq, "error", encodeErr)
			} else {
				onFrame(ctx, frame)
			}
			seq++
			filled = 0
		}

		if err != nil {
			if h.stopping.Load() || ctx.Err() != nil {
				return
			}
			if errors.Is(err, io.EOF) {
				err = fmt.Errorf("capture stream ended: %w", ErrDeviceUnavailable)
			}
			onError(ctx, classify(err, KindDeviceUnavailable))
			return
		}
		if ctx.Err() != nil {
			return
		}
	}
}

// Stop releases the microphone and waits for the capture goroutine to exit.
// It is safe to call more than once.
func (h *CaptureHandle) Stop() error {
	if h == nil {
		return nil
	}

	h.stopOnce.Do(func() {
		h.stopping.Store(true)
		h.cancel()
		if err := h.stream.Close(); err != nil {
			h.stopErr = fmt.Errorf("failed to close capture stream: %w", err)
		}
		<-h.done
	})

	return h.stopErr
}
