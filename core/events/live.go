package events

const (
	// KindSessionReady identifies the remote channel becoming ready for audio.
	KindSessionReady Kind = "live.ready"
	// KindAudioDelta identifies a chunk of synthesized assistant speech.
	KindAudioDelta Kind = "live.audio_delta"
	// KindInputTranscript identifies a partial user transcription.
	KindInputTranscript Kind = "live.input_transcript"
	// KindOutputTranscript identifies a partial assistant transcription.
	KindOutputTranscript Kind = "live.output_transcript"
	// KindTurnComplete identifies the end of the assistant utterance for a turn.
	KindTurnComplete Kind = "live.turn_complete"
	// KindInterrupted identifies a barge-in by the user.
	KindInterrupted Kind = "live.interrupted"
	// KindSessionClosed identifies the remote side closing the channel.
	KindSessionClosed Kind = "live.closed"
	// KindSessionError identifies a failure reported by the remote side.
	KindSessionError Kind = "live.error"
)

// Inbound is implemented by every event a live channel can deliver. The set
// is closed; consumers switch over the concrete types.
type Inbound interface {
	Event
	inbound()
}

func (SessionReady) inbound()     {}
func (AudioDelta) inbound()       {}
func (InputTranscript) inbound()  {}
func (OutputTranscript) inbound() {}
func (TurnComplete) inbound()     {}
func (Interrupted) inbound()      {}
func (SessionClosed) inbound()    {}
func (SessionError) inbound()     {}

// SessionReady marks that the remote channel accepts audio.
type SessionReady struct{ Base }

// NewSessionReady creates a session ready event.
func NewSessionReady() SessionReady {
	return SessionReady{Base: NewBase(KindSessionReady)}
}

// AudioDelta carries base64 encoded linear16 speech audio.
type AudioDelta struct {
	Base
	Data string
}

// NewAudioDelta creates an audio delta event.
func NewAudioDelta(data string) AudioDelta {
	return AudioDelta{Base: NewBase(KindAudioDelta), Data: data}
}

// InputTranscript carries a fragment of the user transcription.
type InputTranscript struct {
	Base
	Text string
}

// NewInputTranscript creates an input transcript event.
func NewInputTranscript(text string) InputTranscript {
	return InputTranscript{Base: NewBase(KindInputTranscript), Text: text}
}

// OutputTranscript carries a fragment of the assistant transcription.
type OutputTranscript struct {
	Base
	Text string
}

// NewOutputTranscript creates an output transcript event.
func NewOutputTranscript(text string) OutputTranscript {
	return OutputTranscript{Base: NewBase(KindOutputTranscript), Text: text}
}

// TurnComplete marks that all deltas of the current turn were delivered.
type TurnComplete struct{ Base }

// NewTurnComplete creates a turn complete event.
func NewTurnComplete() TurnComplete {
	return TurnComplete{Base: NewBase(KindTurnComplete)}
}

// Interrupted marks that the user barged in on assistant speech.
type Interrupted struct{ Base }

// NewInterrupted creates an interrupted event.
func NewInterrupted() Interrupted {
	return Interrupted{Base: NewBase(KindInterrupted)}
}

// SessionClosed marks that the remote side closed the channel.
type SessionClosed struct {
	Base
	Reason string
}

// NewSessionClosed creates a session closed event.
func NewSessionClosed(reason string) SessionClosed {
	return SessionClosed{Base: NewBase(KindSessionClosed), Reason: reason}
}

// SessionError carries a failure reported by the remote side.
type SessionError struct {
	Base
	Detail string
}

// NewSessionError creates a session error event.
func NewSessionError(detail string) SessionError {
	return SessionError{Base: NewBase(KindSessionError), Detail: detail}
}
