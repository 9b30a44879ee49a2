package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/config"
	"github.com/koscakluka/ema-live/core/gemini"
	"github.com/koscakluka/ema-live/core/llms/groq"
	"github.com/koscakluka/ema-live/core/metrics"
	"github.com/koscakluka/ema-live/core/texttospeech/deepgram"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.APIKeys = config.APIKeys{Gemini: "gemini-key", Groq: "groq-key", Deepgram: "deepgram-key"}
	return cfg
}

func TestCollaboratorsDefaultToGemini(t *testing.T) {
	c, err := newCollaborators(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("expected collaborators, got %v", err)
	}

	for name, collaborator := range map[string]any{
		"replier":     c.replier,
		"synthesizer": c.synthesizer,
		"extractor":   c.extractor,
		"documents":   c.documents,
	} {
		if _, ok := collaborator.(*gemini.Client); !ok {
			t.Fatalf("expected gemini %s, got %T", name, collaborator)
		}
	}
}

func TestCollaboratorsFollowProviders(t *testing.T) {
	cfg := testConfig()
	cfg.Text.Provider = config.ProviderGroq
	cfg.Speech.Provider = config.ProviderDeepgram
	cfg.Speech.Voice = "aura-2-zeus-en"

	c, err := newCollaborators(context.Background(), cfg)
	if err != nil {
		t.Fatalf("expected collaborators, got %v", err)
	}
	if _, ok := c.replier.(*groq.Client); !ok {
		t.Fatalf("expected groq replier, got %T", c.replier)
	}
	if _, ok := c.extractor.(*groq.Client); !ok {
		t.Fatalf("expected groq extractor, got %T", c.extractor)
	}
	if _, ok := c.synthesizer.(*deepgram.TextToSpeechClient); !ok {
		t.Fatalf("expected deepgram synthesizer, got %T", c.synthesizer)
	}
	if _, ok := c.documents.(*gemini.Client); !ok {
		t.Fatalf("expected gemini documents, got %T", c.documents)
	}
}

func TestCollaboratorsRejectUnknownVoice(t *testing.T) {
	cfg := testConfig()
	cfg.Speech.Provider = config.ProviderDeepgram
	cfg.Speech.Voice = "robot"

	if _, err := newCollaborators(context.Background(), cfg); err == nil {
		t.Fatalf("expected unknown voice error")
	}
}

func TestServeMetrics(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve a port: %v", err)
	}
	addr := listener.Addr().String()
	listener.Close()

	m := metrics.New("")
	m.RecordTurnCompleted()

	stop, err := serveMetrics(addr, m)
	if err != nil {
		t.Fatalf("expected metrics server, got %v", err)
	}
	defer stop()

	var body []byte
	for deadline := time.Now().Add(time.Second); time.Now().Before(deadline); time.Sleep(10 * time.Millisecond) {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			continue
		}
		body, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
		break
	}
	if !slices.Contains(strings.Split(string(body), "\n"), "emalive_turns_completed_total 1") {
		t.Fatalf("expected turns counter, got:\n%s", body)
	}
}

func TestServeMetricsDisabled(t *testing.T) {
	stop, err := serveMetrics("", metrics.New(""))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	stop()
}

func TestFormatFieldsSortsKeys(t *testing.T) {
	got := formatFields(map[string]string{"name": "Ana", "income": "5200"})
	if got != "income: 5200\nname: Ana\n" {
		t.Fatalf("expected sorted fields, got %q", got)
	}
	if got := formatFields(nil); got != "no fields found\n" {
		t.Fatalf("expected empty marker, got %q", got)
	}
}

func TestDocumentMIMEType(t *testing.T) {
	if got := documentMIMEType("payslip.PDF", nil); got != "application/pdf" {
		t.Fatalf("expected pdf mime type, got %q", got)
	}
	if got := documentMIMEType("scan", []byte("\x89PNG\r\n\x1a\n0000")); got != "image/png" {
		t.Fatalf("expected sniffed png, got %q", got)
	}
}

type fakePlayback struct {
	stopped bool
}

func (p *fakePlayback) Stop() { p.stopped = true }

type fakeSpeaker struct {
	mu        sync.Mutex
	onFinish  []func()
	playbacks []*fakePlayback
}

func (s *fakeSpeaker) Now() time.Time { return time.Unix(0, 0) }

func (s *fakeSpeaker) Schedule(_ audio.Chunk, _ time.Time, onFinish func()) (live.Playback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	playback := &fakePlayback{}
	s.onFinish = append(s.onFinish, onFinish)
	s.playbacks = append(s.playbacks, playback)
	return playback, nil
}

func TestTrackedSpeakerWaitsForPlayback(t *testing.T) {
	inner := &fakeSpeaker{}
	tracked := newTrackedSpeaker(inner)

	if _, err := tracked.Schedule(audio.Chunk{}, time.Now(), nil); err != nil {
		t.Fatalf("expected schedule to succeed, got %v", err)
	}
	second, _ := tracked.Schedule(audio.Chunk{}, time.Now(), nil)

	waited := make(chan struct{})
	go func() {
		tracked.wait(context.Background())
		close(waited)
	}()

	inner.onFinish[0]()
	select {
	case <-waited:
		t.Fatalf("expected wait to block on the second playback")
	case <-time.After(50 * time.Millisecond):
	}

	second.Stop()
	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatalf("expected wait to return once every playback ended")
	}
	if !inner.playbacks[1].stopped {
		t.Fatalf("expected stop to reach the device playback")
	}
}
