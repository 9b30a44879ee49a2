package deepgram

import (
	"fmt"
	"os"
	"slices"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
)

const DefaultURL = "wss://api.deepgram.com/v1/speak"

// TextToSpeechClient synthesizes reply text with the Deepgram Aura voices.
// Every Synthesize call uses its own websocket so calls never share buffers.
type TextToSpeechClient struct {
	apiKey   string
	url      string
	voice    deepgramVoice
	encoding audio.EncodingInfo
	dialer   *websocket.Dialer
}

type ClientOption func(*TextToSpeechClient)

func WithAPIKey(apiKey string) ClientOption {
	return func(c *TextToSpeechClient) { c.apiKey = apiKey }
}

// WithURL points the client at another speak endpoint.
func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) { c.url = url }
}

func WithDialer(dialer *websocket.Dialer) ClientOption {
	return func(c *TextToSpeechClient) { c.dialer = dialer }
}

// WithEncoding changes the requested output encoding. Defaults to the
// playback encoding.
func WithEncoding(encoding audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) { c.encoding = encoding }
}

// NewTextToSpeechClient creates a client speaking with voice. The API key
// defaults to the DEEPGRAM_API_KEY environment variable.
func NewTextToSpeechClient(voice deepgramVoice, opts ...ClientOption) (*TextToSpeechClient, error) {
	if voice == "" {
		voice = defaultVoice
	}
	if !slices.Contains(GetAvailableVoices(), voice) {
		return nil, fmt.Errorf("invalid voice %q", voice)
	}

	client := &TextToSpeechClient{
		apiKey:   os.Getenv("DEEPGRAM_API_KEY"),
		url:      DefaultURL,
		voice:    voice,
		encoding: audio.PlaybackEncodingInfo(),
		dialer:   websocket.DefaultDialer,
	}
	for _, opt := range opts {
		opt(client)
	}

	if client.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	return client, nil
}

