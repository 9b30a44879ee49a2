package live

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
)

func waitForCondition(t *testing.T, timeout time.Duration, description string, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", description)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fakePlayback struct {
	stopped atomic.Bool
}

func (p *fakePlayback) Stop() { p.stopped.Store(true) }

type scheduledCall struct {
	chunk    audio.Chunk
	startAt  time.Time
	onFinish func()
	playback *fakePlayback
}

type fakeSpeaker struct {
	*fakeClock

	mu    sync.Mutex
	calls []scheduledCall
	err   error
}

func newFakeSpeaker() *fakeSpeaker {
	return &fakeSpeaker{fakeClock: newFakeClock()}
}

func (s *fakeSpeaker) Schedule(chunk audio.Chunk, startAt time.Time, onFinish func()) (Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}
	playback := &fakePlayback{}
	s.calls = append(s.calls, scheduledCall{chunk: chunk, startAt: startAt, onFinish: onFinish, playback: playback})
	return playback, nil
}

func (s *fakeSpeaker) scheduled() []scheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()

	calls := make([]scheduledCall, len(s.calls))
	copy(calls, s.calls)
	return calls
}

// finish plays the i-th scheduled chunk to its end.
func (s *fakeSpeaker) finish(i int) {
	call := s.scheduled()[i]
	if call.onFinish != nil && !call.playback.stopped.Load() {
		call.onFinish()
	}
}

var errStreamClosed = io.EOF

type fakeCaptureStream struct {
	samples chan []float32
	closed  chan struct{}

	closeOnce  sync.Once
	closeCalls atomic.Int32
	pending    []float32
}

func newFakeCaptureStream() *fakeCaptureStream {
	return &fakeCaptureStream{
		samples: make(chan []float32, 16),
		closed:  make(chan struct{}),
	}
}

func (s *fakeCaptureStream) Read(samples []float32) (int, error) {
	if len(s.pending) == 0 {
		select {
		case <-s.closed:
			return 0, errStreamClosed
		case next, ok := <-s.samples:
			if !ok {
				return 0, io.EOF
			}
			s.pending = next
		}
	}

	n := copy(samples, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

func (s *fakeCaptureStream) Close() error {
	s.closeCalls.Add(1)
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeCaptureStream) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeMicrophone struct {
	mu      sync.Mutex
	err     error
	block   chan struct{}
	streams []*fakeCaptureStream
}

func (m *fakeMicrophone) Open(ctx context.Context) (CaptureStream, error) {
	m.mu.Lock()
	block := m.block
	err := m.err
	m.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	stream := newFakeCaptureStream()
	m.mu.Lock()
	m.streams = append(m.streams, stream)
	m.mu.Unlock()
	return stream, nil
}

func (m *fakeMicrophone) stream(i int) *fakeCaptureStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i >= len(m.streams) {
		return nil
	}
	return m.streams[i]
}

func (m *fakeMicrophone) openCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

// allReleased reports whether every stream ever opened has been closed.
func (m *fakeMicrophone) allReleased() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, stream := range m.streams {
		if !stream.isClosed() {
			return false
		}
	}
	return true
}

type fakeChannel struct {
	inbound chan events.Inbound
	closed  chan struct{}

	closeOnce sync.Once
	mu        sync.Mutex
	sent      []audio.Frame
	sendErr   error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{
		inbound: make(chan events.Inbound, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeChannel) Send(frame audio.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, frame)
	return nil
}

func (c *fakeChannel) Receive(ctx context.Context) (events.Inbound, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.closed:
		return nil, errors.New("channel closed")
	case event := <-c.inbound:
		return event, nil
	}
}

func (c *fakeChannel) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeChannel) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeChannel) sentFrames() []audio.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	frames := make([]audio.Frame, len(c.sent))
	copy(frames, c.sent)
	return frames
}

func (c *fakeChannel) deliver(inbound ...events.Inbound) {
	for _, event := range inbound {
		c.inbound <- event
	}
}

type fakeTransport struct {
	mu       sync.Mutex
	err      error
	block    chan struct{}
	channels []*fakeChannel
}

func (tr *fakeTransport) Connect(ctx context.Context) (Channel, error) {
	tr.mu.Lock()
	block := tr.block
	err := tr.err
	tr.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	channel := newFakeChannel()
	tr.mu.Lock()
	tr.channels = append(tr.channels, channel)
	tr.mu.Unlock()
	return channel, nil
}

func (tr *fakeTransport) channel(i int) *fakeChannel {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if i >= len(tr.channels) {
		return nil
	}
	return tr.channels[i]
}

func (tr *fakeTransport) count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.channels)
}

func (tr *fakeTransport) allClosed() bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	for _, channel := range tr.channels {
		if !channel.isClosed() {
			return false
		}
	}
	return true
}

// speechPayload returns base64 linear16 audio of the given duration at the
// playback rate.
func speechPayload(d time.Duration) string {
	data := make([]byte, audio.PlaybackEncodingInfo().Samples(d)*2)
	return base64.StdEncoding.EncodeToString(data)
}
