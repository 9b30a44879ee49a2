package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultLiveEndpoint = "wss://generativelanguage.googleapis.com/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"
	DefaultLiveModel    = "gemini-2.0-flash-live-001"
	DefaultVoice        = "Puck"

	closeWriteTimeout = time.Second
)

var errChannelClosed = errors.New("gemini live channel closed")

// LiveTransport opens Gemini Live sessions that answer captured speech with
// spoken audio and transcribe both sides.
type LiveTransport struct {
	apiKey            string
	endpoint          string
	model             string
	voice             string
	systemInstruction string
	dialer            *websocket.Dialer
}

type LiveOption func(*LiveTransport)

// WithAPIKey sets the API key. It defaults to the GEMINI_API_KEY environment
// variable.
func WithAPIKey(apiKey string) LiveOption {
	return func(t *LiveTransport) { t.apiKey = apiKey }
}

func WithEndpoint(endpoint string) LiveOption {
	return func(t *LiveTransport) { t.endpoint = endpoint }
}

func WithLiveModel(model string) LiveOption {
	return func(t *LiveTransport) { t.model = model }
}

func WithVoice(voice string) LiveOption {
	return func(t *LiveTransport) { t.voice = voice }
}

func WithSystemInstruction(instruction string) LiveOption {
	return func(t *LiveTransport) { t.systemInstruction = instruction }
}

func WithDialer(dialer *websocket.Dialer) LiveOption {
	return func(t *LiveTransport) { t.dialer = dialer }
}

func NewLiveTransport(opts ...LiveOption) *LiveTransport {
	t := &LiveTransport{
		apiKey:   os.Getenv("GEMINI_API_KEY"),
		endpoint: DefaultLiveEndpoint,
		model:    DefaultLiveModel,
		voice:    DefaultVoice,
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Connect dials the websocket and sends the session setup. The returned
// channel reports [events.SessionReady] once the service acknowledged it.
func (t *LiveTransport) Connect(ctx context.Context) (live.Channel, error) {
	ctx, span := tracer.Start(ctx, "connect gemini live", trace.WithAttributes(
		attribute.String("gemini.model", t.model),
		attribute.String("gemini.voice", t.voice),
	))
	defer span.End()

	channel, err := t.connect(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return channel, nil
}

func (t *LiveTransport) connect(ctx context.Context) (*liveChannel, error) {
	if t.apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not found", live.ErrConnectionFailed)
	}

	endpoint, err := url.Parse(t.endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint: %w", live.ErrConnectionFailed, err)
	}
	query := endpoint.Query()
	query.Set("key", t.apiKey)
	endpoint.RawQuery = query.Encode()

	conn, _, err := t.dialer.DialContext(ctx, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open socket connection to gemini: %w", live.ErrConnectionFailed, err)
	}

	channel := &liveChannel{conn: conn}
	if err := channel.write(clientMessage{Setup: t.setup()}); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("%w: failed to send setup: %w", live.ErrConnectionFailed, err)
	}

	return channel, nil
}

func (t *LiveTransport) setup() *setupMessage {
	setup := &setupMessage{
		Model: "models/" + t.model,
		GenerationConfig: &generationConfig{
			ResponseModalities: []string{"AUDIO"},
		},
		InputAudioTranscription:  &struct{}{},
		OutputAudioTranscription: &struct{}{},
	}
	if t.voice != "" {
		setup.GenerationConfig.SpeechConfig = &speechConfig{
			VoiceConfig: voiceConfig{PrebuiltVoiceConfig: prebuiltVoiceConfig{VoiceName: t.voice}},
		}
	}
	if t.systemInstruction != "" {
		setup.SystemInstruction = &content{Parts: []part{{Text: t.systemInstruction}}}
	}
	return setup
}

// liveChannel is one Gemini Live websocket. Receive must only be called from
// one goroutine at a time.
type liveChannel struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    bool

	pending      []events.Inbound
	remoteClosed bool
}

func (c *liveChannel) Send(frame audio.Frame) error {
	return c.write(clientMessage{RealtimeInput: &realtimeInput{
		Audio: &blob{MimeType: frame.MIMEType(), Data: frame.Base64()},
	}})
}

func (c *liveChannel) Receive(ctx context.Context) (events.Inbound, error) {
	if len(c.pending) > 0 {
		event := c.pending[0]
		c.pending = c.pending[1:]
		return event, nil
	}
	if c.remoteClosed {
		return nil, errChannelClosed
	}

	stop := context.AfterFunc(ctx, func() { _ = c.conn.SetReadDeadline(time.Now()) })
	defer stop()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return c.readFailed(err)
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("failed to unmarshal gemini live message", "error", err)
			continue
		}
		if msg.GoAway != nil {
			logger.Info("gemini live session ending soon", "time_left", msg.GoAway.TimeLeft)
		}

		inbound := msg.inbound()
		if len(inbound) == 0 {
			continue
		}
		c.pending = inbound[1:]
		return inbound[0], nil
	}
}

// readFailed maps a websocket read error to the session event it stands for.
// Normal closes become [events.SessionClosed], abnormal ones
// [events.SessionError].
func (c *liveChannel) readFailed(err error) (events.Inbound, error) {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return nil, fmt.Errorf("failed to read from gemini live: %w", err)
	}

	c.remoteClosed = true
	switch closeErr.Code {
	case websocket.CloseNormalClosure, websocket.CloseGoingAway:
		return events.NewSessionClosed(closeErr.Text), nil
	default:
		return events.NewSessionError(fmt.Sprintf("close %d: %s", closeErr.Code, closeErr.Text)), nil
	}
}

func (c *liveChannel) write(msg clientMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.closed {
		return errChannelClosed
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (c *liveChannel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.closed = true
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		writeErr := c.conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(closeWriteTimeout))
		c.writeMu.Unlock()

		if closeErr := c.conn.Close(); closeErr != nil {
			err = fmt.Errorf("failed to close websocket: %w", errors.Join(writeErr, closeErr))
		}
	})
	return err
}
