package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/internal/utils"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/genai"
)

const (
	DefaultTextModel   = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
)

// Client implements the request/response collaborators of a conversation on
// top of the Gemini API: text replies, speech synthesis, and field extraction
// from text and documents.
type Client struct {
	client *genai.Client

	textModel         string
	speechModel       string
	voice             string
	systemInstruction string
	fields            []string
	baseURL           string
}

type ClientOption func(*Client)

func WithTextModel(model string) ClientOption {
	return func(c *Client) { c.textModel = model }
}

func WithSpeechModel(model string) ClientOption {
	return func(c *Client) { c.speechModel = model }
}

func WithSpeechVoice(voice string) ClientOption {
	return func(c *Client) { c.voice = voice }
}

func WithReplyInstruction(instruction string) ClientOption {
	return func(c *Client) { c.systemInstruction = instruction }
}

// WithBaseURL points the client at another API host.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithFields sets the field names extraction looks for. Without fields the
// model picks its own names.
func WithFields(fields ...string) ClientOption {
	return func(c *Client) { c.fields = fields }
}

// NewClient creates a Gemini API client. An empty apiKey falls back to the
// GEMINI_API_KEY environment variable.
func NewClient(ctx context.Context, apiKey string, opts ...ClientOption) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not found")
	}

	c := &Client{
		textModel:   DefaultTextModel,
		speechModel: DefaultSpeechModel,
		voice:       DefaultVoice,
	}
	for _, opt := range opts {
		opt(c)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)},
		HTTPOptions: genai.HTTPOptions{BaseURL: c.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	c.client = client

	return c, nil
}

func (c *Client) Reply(ctx context.Context, history []live.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "gemini reply", trace.WithAttributes(
		attribute.String("gemini.model", c.textModel),
		attribute.Int("gemini.history_length", len(history)),
	))
	defer span.End()

	config := &genai.GenerateContentConfig{}
	if c.systemInstruction != "" {
		config.SystemInstruction = genai.NewContentFromText(c.systemInstruction, genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, toContents(history), config)
	if err != nil {
		return "", recordErr(span, fmt.Errorf("failed to generate reply: %w", err))
	}

	return resp.Text(), nil
}

func (c *Client) Synthesize(ctx context.Context, text string) (audio.Chunk, error) {
	ctx, span := tracer.Start(ctx, "gemini synthesize", trace.WithAttributes(
		attribute.String("gemini.model", c.speechModel),
		attribute.String("gemini.voice", c.voice),
	))
	defer span.End()

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: c.voice},
			},
		},
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.speechModel, genai.Text(text), config)
	if err != nil {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("failed to synthesize speech: %w", err))
	}

	data := inlineAudio(resp)
	if len(data) == 0 {
		return audio.Chunk{}, recordErr(span, fmt.Errorf("no audio in synthesis response"))
	}

	chunk := audio.NewChunk(0, data, audio.PlaybackEncodingInfo())
	span.SetAttributes(attribute.Int64("speech.duration_ms", chunk.Duration().Milliseconds()))
	return chunk, nil
}

func (c *Client) ExtractFields(ctx context.Context, text string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "gemini extract fields")
	defer span.End()

	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}
	fields, err := c.extract(ctx, contents)
	if err != nil {
		return nil, recordErr(span, err)
	}
	return fields, nil
}

func (c *Client) ExtractDocument(ctx context.Context, data []byte, mimeType string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "gemini extract document", trace.WithAttributes(
		attribute.String("document.mime_type", mimeType),
	))
	defer span.End()

	contents := []*genai.Content{genai.NewContentFromParts([]*genai.Part{
		genai.NewPartFromBytes(data, mimeType),
		genai.NewPartFromText("Extract the fields from this document."),
	}, genai.RoleUser)}
	fields, err := c.extract(ctx, contents)
	if err != nil {
		return nil, recordErr(span, err)
	}
	return fields, nil
}

func (c *Client) extract(ctx context.Context, contents []*genai.Content) (map[string]string, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(extractionInstruction(c.fields), genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       utils.Ptr[float32](0),
	}
	if len(c.fields) > 0 {
		config.ResponseSchema = fieldsSchema(c.fields)
	}

	resp, err := c.client.Models.GenerateContent(ctx, c.textModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("failed to extract fields: %w", err)
	}

	return parseFields(resp.Text())
}

func toContents(history []live.Message) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history))
	for _, message := range history {
		role := genai.Role(genai.RoleUser)
		if message.Sender == live.SenderAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(message.Text, role))
	}
	return contents
}

func inlineAudio(resp *genai.GenerateContentResponse) []byte {
	if resp == nil {
		return nil
	}
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, p := range candidate.Content.Parts {
			if p.InlineData != nil && len(p.InlineData.Data) > 0 {
				return p.InlineData.Data
			}
		}
	}
	return nil
}

func fieldsSchema(fields []string) *genai.Schema {
	properties := make(map[string]*genai.Schema, len(fields))
	for _, field := range fields {
		properties[field] = &genai.Schema{Type: genai.TypeString}
	}
	return &genai.Schema{Type: genai.TypeObject, Properties: properties}
}

func extractionInstruction(fields []string) string {
	instruction := "Extract structured data relevant to a mortgage application from the user input. " +
		"Respond with a flat JSON object of string values and omit anything that is not stated."
	if len(fields) > 0 {
		instruction += " Only use these keys: " + strings.Join(fields, ", ") + "."
	}
	return instruction
}

// parseFields decodes a flat JSON object, keeping non-empty values and
// rendering non-string ones as JSON.
func parseFields(text string) (map[string]string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimSuffix(strings.TrimPrefix(text, "```"), "```")

	raw := map[string]any{}
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse extracted fields: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		switch v := value.(type) {
		case nil:
		case string:
			if v != "" {
				fields[key] = v
			}
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				continue
			}
			fields[key] = string(encoded)
		}
	}
	return fields, nil
}

func recordErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
