package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
	live "github.com/koscakluka/ema-live/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Fields is the shape extraction responses are constrained to.
type Fields map[string]string

// ExtractFields asks the model for the configured fields mentioned in text.
// Fields the text does not mention are left out of the result.
func (c *Client) ExtractFields(ctx context.Context, text string) (map[string]string, error) {
	ctx, span := tracer.Start(ctx, "groq extract fields", trace.WithAttributes(
		attribute.String("request.model", c.model),
		attribute.StringSlice("request.fields", c.fields),
	))
	defer span.End()

	messages, err := toMessages(extractionInstruction(c.fields), []live.Message{{
		Sender: live.SenderUser,
		Text:   text,
	}})
	if err != nil {
		return nil, recordErr(span, err)
	}

	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(Fields{})

	reqBody := schemaRequestBody{
		Model:    c.model,
		Messages: messages,
		ResponseFormat: &ChatResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchema{
				Name:   "Fields",
				Schema: *schema,
			},
		},
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return nil, recordErr(span, err)
	}
	defer resp.Body.Close()

	var responseBody schemaResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		return nil, recordErr(span, fmt.Errorf("error reading response body: %w", err))
	}
	if len(responseBody.Choices) == 0 {
		return nil, recordErr(span, fmt.Errorf("no choices in response"))
	}

	fields, err := parseFields(responseBody.Choices[0].Message.Content)
	if err != nil {
		return nil, recordErr(span, err)
	}
	span.SetAttributes(attribute.Int("response.fields", len(fields)))

	return fields, nil
}

func extractionInstruction(fields []string) string {
	instruction := "Extract the facts the user states about themselves as a flat JSON object of string values. " +
		"Leave out anything the user did not mention."
	if len(fields) > 0 {
		instruction += " Only use these keys: " + strings.Join(fields, ", ") + "."
	}
	return instruction
}

// parseFields decodes the model output, tolerating a fenced code block and
// non-string scalar values.
func parseFields(content string) (map[string]string, error) {
	split := strings.Split(content, "```")
	if len(split) > 1 {
		content = strings.TrimPrefix(split[1], "json")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling response: %w", err)
	}

	fields := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		text := strings.TrimSpace(fmt.Sprint(value))
		if text == "" {
			continue
		}
		fields[key] = text
	}
	return fields, nil
}

type schemaRequestBody struct {
	Model          string              `json:"model"`
	Messages       []message           `json:"messages"`
	ResponseFormat *ChatResponseFormat `json:"response_format,omitempty"`
}

type ChatResponseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *JSONSchema `json:"json_schema,omitempty"`
}

type JSONSchema struct {
	// Name identifies the schema in the response.
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	Schema      jsonschema.Schema `json:"schema"`
	// Strict enforces the schema upon the generated content. Groq only
	// supports strict mode for schemas with fixed properties.
	Strict bool `json:"strict"`
}

type schemaResponseBody struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role,omitempty"`
			Content string `json:"content,omitempty"`
		} `json:"message"`
	} `json:"choices"`
}
