package gemini

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	live "github.com/koscakluka/ema-live/core"
)

type recordedRequest struct {
	path string
	body string
}

func newModelServer(t *testing.T, response string) (*httptest.Server, func() []recordedRequest) {
	t.Helper()

	var (
		mu       sync.Mutex
		requests []recordedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, recordedRequest{path: r.URL.Path, body: string(body)})
		mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, response)
	}))
	t.Cleanup(server.Close)

	return server, func() []recordedRequest {
		mu.Lock()
		defer mu.Unlock()
		return append([]recordedRequest(nil), requests...)
	}
}

func newTestClient(t *testing.T, server *httptest.Server, opts ...ClientOption) *Client {
	t.Helper()

	client, err := NewClient(context.Background(), "test-key", append([]ClientOption{WithBaseURL(server.URL + "/")}, opts...)...)
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}
	return client
}

func TestReplySendsHistoryWithRoles(t *testing.T) {
	server, requests := newModelServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"Your rate is 4.2%."}]}}]}`)
	client := newTestClient(t, server, WithTextModel("test-text"))

	reply, err := client.Reply(context.Background(), []live.Message{
		{Sender: live.SenderUser, Text: "Hi", CreatedAt: time.Now()},
		{Sender: live.SenderAssistant, Text: "Hello, how can I help?", CreatedAt: time.Now()},
		{Sender: live.SenderUser, Text: "What is my rate?", CreatedAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("expected reply, got %v", err)
	}
	if reply != "Your rate is 4.2%." {
		t.Fatalf("expected reply text, got %q", reply)
	}

	recorded := requests()
	if len(recorded) != 1 {
		t.Fatalf("expected 1 request, got %d", len(recorded))
	}
	if !strings.Contains(recorded[0].path, "test-text:generateContent") {
		t.Fatalf("expected generateContent on the text model, got %q", recorded[0].path)
	}
	if !strings.Contains(recorded[0].body, `"role":"model"`) {
		t.Fatalf("expected assistant turns to be sent as model, got %s", recorded[0].body)
	}
}

func TestSynthesizeReturnsPlaybackChunk(t *testing.T) {
	// 4800 bytes of linear16 at 24kHz is 100ms.
	payload := strings.Repeat("A", 6400)
	server, _ := newModelServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"inlineData":{"mimeType":"audio/L16;codec=pcm;rate=24000","data":"`+payload+`"}}]}}]}`)
	client := newTestClient(t, server)

	chunk, err := client.Synthesize(context.Background(), "Your rate is 4.2%.")
	if err != nil {
		t.Fatalf("expected speech, got %v", err)
	}
	if got := chunk.Duration(); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms of speech, got %s", got)
	}
}

func TestSynthesizeWithoutAudioFails(t *testing.T) {
	server, _ := newModelServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"no audio"}]}}]}`)
	client := newTestClient(t, server)

	if _, err := client.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatalf("expected synthesis without audio to fail")
	}
}

func TestExtractFieldsUsesSchema(t *testing.T) {
	server, requests := newModelServer(t, `{"candidates":[{"content":{"role":"model","parts":[{"text":"{\"loan_amount\":\"350000\",\"term_years\":30,\"employer\":null}"}]}}]}`)
	client := newTestClient(t, server, WithFields("loan_amount", "term_years"))

	fields, err := client.ExtractFields(context.Background(), "I want 350k over 30 years")
	if err != nil {
		t.Fatalf("expected fields, got %v", err)
	}
	if fields["loan_amount"] != "350000" || fields["term_years"] != "30" {
		t.Fatalf("unexpected fields %v", fields)
	}
	if _, ok := fields["employer"]; ok {
		t.Fatalf("expected null values to be dropped")
	}
	if body := requests()[0].body; !strings.Contains(body, "loan_amount") || !strings.Contains(body, "application/json") {
		t.Fatalf("expected schema and json mime type in request, got %s", body)
	}
}

func TestParseFields(t *testing.T) {
	fields, err := parseFields("```json\n{\"rate\": \"4.2%\", \"empty\": \"\"}\n```")
	if err != nil {
		t.Fatalf("expected fenced json to parse, got %v", err)
	}
	if len(fields) != 1 || fields["rate"] != "4.2%" {
		t.Fatalf("unexpected fields %v", fields)
	}

	if _, err := parseFields("not json"); err == nil {
		t.Fatalf("expected invalid json to fail")
	}
}
