package groq

import (
	"fmt"
	"net/http"
	"os"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultURL   = "https://api.groq.com/openai/v1/chat/completions"
	DefaultModel = "llama-3.3-70b-versatile"
)

// Client answers text conversations and extracts fields using the Groq chat
// completions API. It only serves the text side of a conversation; pair it
// with a speech synthesizer for spoken replies.
type Client struct {
	apiKey       string
	model        string
	url          string
	instructions string
	fields       []string
	stream       func(string)

	client *http.Client
}

type ClientOption func(*Client)

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

// WithURL points the client at another chat completions endpoint.
func WithURL(url string) ClientOption {
	return func(c *Client) { c.url = url }
}

func WithInstructions(instructions string) ClientOption {
	return func(c *Client) { c.instructions = instructions }
}

// WithFields sets the field names extraction looks for.
func WithFields(fields ...string) ClientOption {
	return func(c *Client) { c.fields = fields }
}

// WithStream registers a callback receiving reply text as it streams in.
func WithStream(stream func(string)) ClientOption {
	return func(c *Client) { c.stream = stream }
}

// NewClient creates a Groq client. An empty apiKey falls back to the
// GROQ_API_KEY environment variable.
func NewClient(apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GROQ_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("groq api key not found")
	}

	c := &Client{
		apiKey: apiKey,
		model:  DefaultModel,
		url:    DefaultURL,
		client: &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
	}
	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	span.SetAttributes(attribute.String("error", err.Error()))
	return err
}
