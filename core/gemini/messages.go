package gemini

import (
	"strings"

	"github.com/koscakluka/ema-live/core/events"
)

// Wire format of the BidiGenerateContent websocket. Only the fields the
// live session uses are modelled.

type clientMessage struct {
	Setup         *setupMessage  `json:"setup,omitempty"`
	RealtimeInput *realtimeInput `json:"realtimeInput,omitempty"`
}

type setupMessage struct {
	Model                    string            `json:"model"`
	GenerationConfig         *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction        *content          `json:"systemInstruction,omitempty"`
	InputAudioTranscription  *struct{}         `json:"inputAudioTranscription,omitempty"`
	OutputAudioTranscription *struct{}         `json:"outputAudioTranscription,omitempty"`
}

type generationConfig struct {
	ResponseModalities []string      `json:"responseModalities"`
	SpeechConfig       *speechConfig `json:"speechConfig,omitempty"`
}

type speechConfig struct {
	VoiceConfig voiceConfig `json:"voiceConfig"`
}

type voiceConfig struct {
	PrebuiltVoiceConfig prebuiltVoiceConfig `json:"prebuiltVoiceConfig"`
}

type prebuiltVoiceConfig struct {
	VoiceName string `json:"voiceName"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text       string `json:"text,omitempty"`
	InlineData *blob  `json:"inlineData,omitempty"`
}

type blob struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type realtimeInput struct {
	Audio *blob `json:"audio,omitempty"`
}

type serverMessage struct {
	SetupComplete *struct{}      `json:"setupComplete,omitempty"`
	ServerContent *serverContent `json:"serverContent,omitempty"`
	GoAway        *goAway        `json:"goAway,omitempty"`
}

type serverContent struct {
	ModelTurn           *content       `json:"modelTurn,omitempty"`
	InputTranscription  *transcription `json:"inputTranscription,omitempty"`
	OutputTranscription *transcription `json:"outputTranscription,omitempty"`
	Interrupted         bool           `json:"interrupted,omitempty"`
	TurnComplete        bool           `json:"turnComplete,omitempty"`
}

type transcription struct {
	Text string `json:"text"`
}

type goAway struct {
	TimeLeft string `json:"timeLeft"`
}

// inbound maps one server message to the session events it carries, in the
// order they have to be applied.
func (m serverMessage) inbound() []events.Inbound {
	out := []events.Inbound{}
	if m.SetupComplete != nil {
		out = append(out, events.NewSessionReady())
	}

	c := m.ServerContent
	if c == nil {
		return out
	}

	if c.ModelTurn != nil {
		for _, p := range c.ModelTurn.Parts {
			if p.InlineData == nil || p.InlineData.Data == "" {
				continue
			}
			if mime := p.InlineData.MimeType; mime != "" && !strings.HasPrefix(mime, "audio/") {
				continue
			}
			out = append(out, events.NewAudioDelta(p.InlineData.Data))
		}
	}
	if c.InputTranscription != nil && c.InputTranscription.Text != "" {
		out = append(out, events.NewInputTranscript(c.InputTranscription.Text))
	}
	if c.OutputTranscription != nil && c.OutputTranscription.Text != "" {
		out = append(out, events.NewOutputTranscript(c.OutputTranscription.Text))
	}
	if c.Interrupted {
		out = append(out, events.NewInterrupted())
	}
	if c.TurnComplete {
		out = append(out, events.NewTurnComplete())
	}

	return out
}
