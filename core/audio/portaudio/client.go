// Package portaudio provides a microphone backed by PortAudio blocking
// streams. It is an alternative to the miniaudio backend on systems where
// PortAudio is already installed.
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"
	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
)

const DefaultBufferSize = 1024

type Microphone struct {
	bufferSize int
}

func NewMicrophone(bufferSize int) *Microphone {
	if bufferSize <= 0 {
		bufferSize = DefaultBufferSize
	}
	return &Microphone{bufferSize: bufferSize}
}

// Open initializes PortAudio and starts a mono input stream at the capture
// rate. Every open stream holds its own PortAudio initialization.
func (m *Microphone) Open(_ context.Context) (live.CaptureStream, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: failed to initialize portaudio: %w", live.ErrDeviceUnavailable, err)
	}

	in := make([]float32, m.bufferSize)
	stream, err := portaudio.OpenDefaultStream(1, 0, audio.CaptureSampleRate, m.bufferSize, in)
	if err != nil {
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to open portaudio stream: %w", live.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return nil, fmt.Errorf("%w: failed to start portaudio stream: %w", live.ErrDeviceUnavailable, err)
	}

	return &captureStream{stream: stream, in: in}, nil
}

type captureStream struct {
	stream   *portaudio.Stream
	in       []float32
	leftover []float32
	closed   bool

	mu sync.Mutex
}

func (s *captureStream) Read(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, io.EOF
	}

	if len(s.leftover) == 0 {
		if err := s.stream.Read(); err != nil && !errors.Is(err, portaudio.InputOverflowed) {
			return 0, fmt.Errorf("%w: failed to read from portaudio stream: %w", live.ErrDeviceUnavailable, err)
		}
		s.leftover = s.in
	}

	n := copy(buf, s.leftover)
	s.leftover = s.leftover[n:]
	return n, nil
}

// Close waits for an in-flight Read, which blocks for at most one buffer.
func (s *captureStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, err)
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
