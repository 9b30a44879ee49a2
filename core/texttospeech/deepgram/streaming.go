package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type websocketMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

var (
	sendTextMsg = func(text string) websocketMessage { return websocketMessage{Type: "Speak", Text: text} }
	flushMsg    = websocketMessage{Type: "Flush"}
	closeMsg    = websocketMessage{Type: "Close"}
)

// Synthesize speaks text and returns the complete audio once Deepgram
// confirms the flush.
func (c *TextToSpeechClient) Synthesize(ctx context.Context, text string) (audio.Chunk, error) {
	ctx, span := tracer.Start(ctx, "deepgram synthesize", trace.WithAttributes(
		attribute.String("deepgram.voice", string(c.voice)),
		attribute.Int("deepgram.text_length", len(text)),
	))
	defer span.End()

	if strings.TrimSpace(text) == "" {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("nothing to synthesize"))
	}

	conn, err := c.connectWebsocket(ctx)
	if err != nil {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("failed to open websocket: %w", err))
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.SetReadDeadline(time.Now()) })
	defer stop()

	if err := conn.WriteJSON(sendTextMsg(text)); err != nil {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("failed to send text: %w", err))
	}
	if err := conn.WriteJSON(flushMsg); err != nil {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("failed to flush: %w", err))
	}

	var speech bytes.Buffer
	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				err = ctxErr
			}
			return audio.Chunk{}, recordErr(span, fmt.Errorf("failed to read speech: %w", err))
		}

		if msgType == websocket.BinaryMessage {
			speech.Write(msg)
			continue
		}

		var parsedMsg websocketMessage
		if err := json.Unmarshal(msg, &parsedMsg); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			continue
		}
		if parsedMsg.Type == "Flushed" {
			break
		}
		if parsedMsg.Type == "Warning" || parsedMsg.Type == "Error" {
			logger.Warn("deepgram reported a problem", "type", parsedMsg.Type, "message", string(msg))
		}
	}

	if err := conn.WriteJSON(closeMsg); err != nil {
		logger.Debug("failed to send close message", "error", err)
	}

	if speech.Len() == 0 {
		return audio.Chunk{}, recordErr(span, errors.New("no audio received"))
	}
	span.SetAttributes(attribute.Int("deepgram.audio_bytes", speech.Len()))

	return audio.NewChunk(0, speech.Bytes(), c.encoding), nil
}

func (c *TextToSpeechClient) connectWebsocket(ctx context.Context) (*websocket.Conn, error) {
	endpoint, err := url.Parse(c.url)
	if err != nil {
		return nil, fmt.Errorf("invalid speak url: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("encoding", c.encoding.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encoding.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	endpoint.RawQuery = urlValues.Encode()

	conn, _, err := c.dialer.DialContext(ctx, endpoint.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
