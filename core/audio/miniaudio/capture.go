package miniaudio

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/gen2brain/malgo"
	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
)

// maxBufferedSamples bounds captured audio nobody has read yet, about two
// seconds at the capture rate.
const maxBufferedSamples = 2 * audio.CaptureSampleRate

type Microphone struct {
	audioContext *malgo.AllocatedContext
}

// Open starts the default capture device as mono float32 at the capture
// rate. The device is released when the returned stream is closed.
func (m *Microphone) Open(_ context.Context) (live.CaptureStream, error) {
	config := malgo.DefaultDeviceConfig(malgo.Capture)
	config.SampleRate = audio.CaptureSampleRate
	config.Capture.Format = malgo.FormatF32
	config.Capture.Channels = 1
	config.Alsa.NoMMap = 1
	config.PerformanceProfile = malgo.LowLatency

	stream := &captureStream{}
	stream.cond = sync.NewCond(&stream.mu)

	device, err := malgo.InitDevice(m.audioContext.Context, config, malgo.DeviceCallbacks{
		Data: stream.write,
		Stop: stream.deviceStopped,
	})
	if err != nil {
		return nil, classifyDeviceErr(fmt.Errorf("failed to initialize capture device: %w", err))
	}
	stream.device = device

	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, classifyDeviceErr(fmt.Errorf("failed to start capture device: %w", err))
	}

	return stream, nil
}

type captureStream struct {
	device *malgo.Device

	samples []float32
	closed  bool

	mu        sync.Mutex
	cond      *sync.Cond
	closeOnce sync.Once
}

func (s *captureStream) write(_, pInput []byte, frameCount uint32) {
	n := int(frameCount) * 4
	if len(pInput) < n || n == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for i := 0; i < n; i += 4 {
		s.samples = append(s.samples, math.Float32frombits(binary.LittleEndian.Uint32(pInput[i:])))
	}
	if overflow := len(s.samples) - maxBufferedSamples; overflow > 0 {
		s.samples = s.samples[overflow:]
	}
	s.cond.Broadcast()
}

// deviceStopped fires when the device stops, including when it disappears
// from under us.
func (s *captureStream) deviceStopped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cond.Broadcast()
}

// Read blocks until captured samples are available. It returns io.EOF once
// the device has stopped and everything buffered was read.
func (s *captureStream) Read(buf []float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.samples) == 0 && !s.closed {
		s.cond.Wait()
	}
	if len(s.samples) == 0 {
		return 0, io.EOF
	}

	n := copy(buf, s.samples)
	s.samples = s.samples[n:]
	return n, nil
}

func (s *captureStream) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.samples = nil
		s.cond.Broadcast()
		s.mu.Unlock()

		s.device.Uninit()
	})
	return nil
}

func classifyDeviceErr(err error) error {
	message := strings.ToLower(err.Error())
	if strings.Contains(message, "access denied") || strings.Contains(message, "permission") {
		return fmt.Errorf("%w: %w", live.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%w: %w", live.ErrDeviceUnavailable, err)
}
