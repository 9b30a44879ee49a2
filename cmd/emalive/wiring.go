package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio/miniaudio"
	"github.com/koscakluka/ema-live/core/audio/portaudio"
	"github.com/koscakluka/ema-live/core/config"
	"github.com/koscakluka/ema-live/core/gemini"
	"github.com/koscakluka/ema-live/core/llms/groq"
	"github.com/koscakluka/ema-live/core/metrics"
	"github.com/koscakluka/ema-live/core/texttospeech/deepgram"
)

type collaborators struct {
	replier     live.TextReplier
	synthesizer live.SpeechSynthesizer
	extractor   live.Extractor
	documents   live.DocumentExtractor
}

// newCollaborators builds the request/response backends the config selects.
// Gemini always extracts documents.
func newCollaborators(ctx context.Context, cfg *config.Config) (collaborators, error) {
	geminiOpts := []gemini.ClientOption{
		gemini.WithFields(cfg.Extraction.Fields...),
	}
	if cfg.Text.Provider == config.ProviderGemini && cfg.Text.Model != "" {
		geminiOpts = append(geminiOpts, gemini.WithTextModel(cfg.Text.Model))
	}
	if cfg.Text.Instructions != "" {
		geminiOpts = append(geminiOpts, gemini.WithReplyInstruction(cfg.Text.Instructions))
	}
	if cfg.Speech.Provider == config.ProviderGemini && cfg.Speech.Voice != "" {
		geminiOpts = append(geminiOpts, gemini.WithSpeechVoice(cfg.Speech.Voice))
	}

	geminiClient, err := gemini.NewClient(ctx, cfg.APIKeys.Gemini, geminiOpts...)
	if err != nil {
		return collaborators{}, err
	}

	c := collaborators{
		replier:     geminiClient,
		synthesizer: geminiClient,
		extractor:   geminiClient,
		documents:   geminiClient,
	}

	if cfg.Text.Provider == config.ProviderGroq {
		groqOpts := []groq.ClientOption{groq.WithFields(cfg.Extraction.Fields...)}
		if cfg.Text.Model != "" {
			groqOpts = append(groqOpts, groq.WithModel(cfg.Text.Model))
		}
		if cfg.Text.Instructions != "" {
			groqOpts = append(groqOpts, groq.WithInstructions(cfg.Text.Instructions))
		}
		groqClient, err := groq.NewClient(cfg.APIKeys.Groq, groqOpts...)
		if err != nil {
			return collaborators{}, err
		}
		c.replier = groqClient
		c.extractor = groqClient
	}

	if cfg.Speech.Provider == config.ProviderDeepgram {
		voice, ok := deepgram.ParseVoice(cfg.Speech.Voice)
		if !ok && cfg.Speech.Voice != "" {
			return collaborators{}, fmt.Errorf("unknown deepgram voice %q", cfg.Speech.Voice)
		}
		synthesizer, err := deepgram.NewTextToSpeechClient(voice, deepgram.WithAPIKey(cfg.APIKeys.Deepgram))
		if err != nil {
			return collaborators{}, err
		}
		c.synthesizer = synthesizer
	}

	return c, nil
}

func newLiveTransport(cfg *config.Config) *gemini.LiveTransport {
	opts := []gemini.LiveOption{
		gemini.WithAPIKey(cfg.APIKeys.Gemini),
		gemini.WithLiveModel(cfg.Live.Model),
	}
	if cfg.Live.Voice != "" {
		opts = append(opts, gemini.WithVoice(cfg.Live.Voice))
	}
	if cfg.Live.SystemInstruction != "" {
		opts = append(opts, gemini.WithSystemInstruction(cfg.Live.SystemInstruction))
	}
	if cfg.Live.Endpoint != "" {
		opts = append(opts, gemini.WithEndpoint(cfg.Live.Endpoint))
	}
	return gemini.NewLiveTransport(opts...)
}

type devices struct {
	microphone live.Microphone
	speaker    live.Speaker

	output *miniaudio.Speaker
	client *miniaudio.Client
}

// openDevices always plays through miniaudio. Only capture can be switched
// to portaudio.
func openDevices(cfg *config.Config) (*devices, error) {
	client, err := miniaudio.NewClient()
	if err != nil {
		return nil, err
	}

	speaker, err := client.NewSpeaker()
	if err != nil {
		client.Close()
		return nil, err
	}

	d := &devices{
		microphone: client.Microphone(),
		speaker:    speaker,
		output:     speaker,
		client:     client,
	}
	if cfg.Audio.Backend == config.AudioBackendPortaudio {
		d.microphone = portaudio.NewMicrophone(cfg.Audio.BufferSize)
	}
	return d, nil
}

func (d *devices) Close() {
	d.output.Close()
	d.client.Close()
}

// newConversation wires a conversation from the config on top of opened
// devices. The returned close function stops the conversation and the
// metrics endpoint; the devices stay with the caller.
func newConversation(ctx context.Context, cfg *config.Config, d *devices, callbacks ...live.Option) (*live.Conversation, func(), error) {
	c, err := newCollaborators(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	m := metrics.New("")
	stopMetrics, err := serveMetrics(cfg.Metrics.Address, m)
	if err != nil {
		return nil, nil, err
	}

	opts := []live.Option{
		live.WithMicrophone(d.microphone),
		live.WithSpeaker(d.speaker),
		live.WithTransport(newLiveTransport(cfg)),
		live.WithMetrics(m),
		live.WithFrameSamples(cfg.Live.FrameSamples),
		live.WithPreconnectBuffer(cfg.Live.PreconnectFrames),
		live.WithReadyTimeout(cfg.Live.ReadyTimeout),
		live.WithTextReplier(c.replier),
		live.WithSpeechSynthesizer(c.synthesizer),
		live.WithExtractor(c.extractor),
		live.WithDocumentExtractor(c.documents),
	}
	conversation := live.NewConversation(append(opts, callbacks...)...)

	return conversation, func() {
		conversation.Close()
		stopMetrics()
	}, nil
}

// serveMetrics exposes m on addr until the returned function is called. An
// empty addr serves nothing.
func serveMetrics(addr string, m *metrics.Metrics) (func(), error) {
	if addr == "" {
		return func() {}, nil
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = server.Shutdown(ctx)
	}, nil
}
