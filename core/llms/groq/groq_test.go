package groq

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	live "github.com/koscakluka/ema-live/core"
)

type recordedRequest struct {
	Authorization string
	Body          map[string]json.RawMessage
	Messages      []message
}

type completionServer struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

func newCompletionServer(t *testing.T, handler func(w http.ResponseWriter)) *completionServer {
	t.Helper()

	server := &completionServer{}
	server.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]json.RawMessage
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var messages []message
		_ = json.Unmarshal(body["messages"], &messages)

		server.mu.Lock()
		server.requests = append(server.requests, recordedRequest{
			Authorization: r.Header.Get("Authorization"),
			Body:          body,
			Messages:      messages,
		})
		server.mu.Unlock()

		handler(w)
	}))
	t.Cleanup(server.Close)
	return server
}

func (s *completionServer) request(t *testing.T) recordedRequest {
	t.Helper()

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(s.requests))
	}
	return s.requests[0]
}

func streamChunks(chunks ...string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			payload, _ := json.Marshal(map[string]any{
				"choices": []any{map[string]any{"delta": map[string]any{"content": chunk}}},
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func TestReplySendsHistoryAndJoinsStream(t *testing.T) {
	server := newCompletionServer(t, streamChunks("Your rate ", "is 4.5", "%."))

	var streamed []string
	client, err := NewClient("test-key",
		WithURL(server.URL),
		WithInstructions("Be brief."),
		WithStream(func(s string) { streamed = append(streamed, s) }),
	)
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	reply, err := client.Reply(context.Background(), []live.Message{
		{Sender: live.SenderUser, Text: "Hi"},
		{Sender: live.SenderAssistant, Text: "Hello!"},
		{Sender: live.SenderUser, Text: "What is my rate?"},
	})
	if err != nil {
		t.Fatalf("expected reply, got %v", err)
	}
	if reply != "Your rate is 4.5%." {
		t.Fatalf("expected joined reply, got %q", reply)
	}
	if len(streamed) != 3 {
		t.Fatalf("expected 3 streamed chunks, got %d", len(streamed))
	}

	request := server.request(t)
	if request.Authorization != "Bearer test-key" {
		t.Fatalf("expected bearer auth, got %q", request.Authorization)
	}
	want := []message{
		{Role: messageRoleSystem, Content: "Be brief."},
		{Role: messageRoleUser, Content: "Hi"},
		{Role: messageRoleAssistant, Content: "Hello!"},
		{Role: messageRoleUser, Content: "What is my rate?"},
	}
	if len(request.Messages) != len(want) {
		t.Fatalf("expected %d messages, got %d", len(want), len(request.Messages))
	}
	for i := range want {
		if request.Messages[i] != want[i] {
			t.Fatalf("message %d: expected %+v, got %+v", i, want[i], request.Messages[i])
		}
	}
}

func TestReplyFailsOnErrorStatus(t *testing.T) {
	server := newCompletionServer(t, func(w http.ResponseWriter) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	})

	client, _ := NewClient("test-key", WithURL(server.URL))
	_, err := client.Reply(context.Background(), []live.Message{{Sender: live.SenderUser, Text: "Hi"}})
	if err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")

	if _, err := NewClient(""); err == nil {
		t.Fatalf("expected missing key error")
	}

	t.Setenv("GROQ_API_KEY", "from-env")
	client, err := NewClient("")
	if err != nil {
		t.Fatalf("expected env key to be used, got %v", err)
	}
	if client.apiKey != "from-env" {
		t.Fatalf("expected key from env, got %q", client.apiKey)
	}
}

func TestExtractFieldsRequestsSchema(t *testing.T) {
	server := newCompletionServer(t, func(w http.ResponseWriter) {
		content := "```json\n{\"name\": \"Ana\", \"income\": 5200, \"employer\": null}\n```"
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []any{map[string]any{"message": map[string]any{"role": "assistant", "content": content}}},
		})
	})

	client, _ := NewClient("test-key", WithURL(server.URL), WithFields("name", "income", "employer"))
	fields, err := client.ExtractFields(context.Background(), "I'm Ana and I earn 5200 a month")
	if err != nil {
		t.Fatalf("expected fields, got %v", err)
	}
	if fields["name"] != "Ana" || fields["income"] != "5200" {
		t.Fatalf("expected name and income, got %v", fields)
	}
	if _, ok := fields["employer"]; ok {
		t.Fatalf("expected null employer to be dropped, got %v", fields)
	}

	request := server.request(t)
	var format ChatResponseFormat
	if err := json.Unmarshal(request.Body["response_format"], &format); err != nil {
		t.Fatalf("expected response format, got %v", err)
	}
	if format.Type != "json_schema" || format.JSONSchema == nil || format.JSONSchema.Schema.Type != "object" {
		t.Fatalf("expected object json schema, got %+v", format)
	}
	if len(request.Messages) != 2 || request.Messages[0].Role != messageRoleSystem {
		t.Fatalf("expected system and user messages, got %+v", request.Messages)
	}
	if !strings.Contains(request.Messages[0].Content, "name, income, employer") {
		t.Fatalf("expected field names in instructions, got %q", request.Messages[0].Content)
	}
}

func TestParseFieldsRejectsNonJSON(t *testing.T) {
	if _, err := parseFields("no idea"); err == nil {
		t.Fatalf("expected parse error")
	}
}
