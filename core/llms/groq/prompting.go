package groq

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	live "github.com/koscakluka/ema-live/core"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	endMessage  = "[DONE]"
	chunkPrefix = "data:"
)

// Reply streams a chat completion for history and returns the full assistant
// text once the stream ends.
func (c *Client) Reply(ctx context.Context, history []live.Message) (string, error) {
	ctx, span := tracer.Start(ctx, "groq reply", trace.WithAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.history_length", len(history)),
	))
	defer span.End()

	messages, err := toMessages(c.instructions, history)
	if err != nil {
		return "", recordErr(span, err)
	}

	reqBody := requestBody{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
	}

	resp, err := c.post(ctx, reqBody)
	if err != nil {
		return "", recordErr(span, err)
	}
	defer resp.Body.Close()

	var response strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

		if len(chunk) == 0 {
			continue
		}

		if chunk == endMessage {
			break
		}

		var responseBody streamingResponseBody
		if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
			logger.Warn("error unmarshalling stream chunk", "error", err)
			continue
		}
		if len(responseBody.Choices) == 0 {
			continue
		}

		content := responseBody.Choices[0].Delta.Content
		response.WriteString(content)
		if c.stream != nil && content != "" {
			c.stream(content)
		}
	}

	if err := scanner.Err(); err != nil {
		return "", recordErr(span, fmt.Errorf("error reading streamed response: %w", err))
	}

	return strings.TrimSpace(response.String()), nil
}

func (c *Client) post(ctx context.Context, body any) (*http.Response, error) {
	requestBodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		errorBody, _ := io.ReadAll(resp.Body)
		// TODO: Retry on 429 and 503 using the retry-after header
		return nil, fmt.Errorf("non-OK HTTP status: %s: %s", resp.Status, strings.TrimSpace(string(errorBody)))
	}

	return resp, nil
}

type requestBody struct {
	Model    string    `json:"model"`
	Messages []message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type streamingResponseBody struct {
	Choices []struct {
		Delta struct {
			Role         string  `json:"role,omitempty"`
			Content      string  `json:"content,omitempty"`
			FinishReason *string `json:"finish_reason,omitempty"`
		} `json:"delta"`
	} `json:"choices"`
}
