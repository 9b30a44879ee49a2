package events

import "time"

const (
	// KindStateChanged identifies a live session state transition.
	KindStateChanged Kind = "conversation.state_changed"
	// KindMessageFinalized identifies a message appended to the conversation.
	KindMessageFinalized Kind = "conversation.message_finalized"
	// KindFieldsExtracted identifies structured data extracted from input.
	KindFieldsExtracted Kind = "conversation.fields_extracted"
	// KindFailure identifies a live session failure.
	KindFailure Kind = "conversation.failure"
)

// StateChanged reports a live session state transition.
type StateChanged struct {
	Base
	SessionID string
	From      string
	To        string
}

// NewStateChanged creates a state changed event.
func NewStateChanged(sessionID, from, to string) StateChanged {
	return StateChanged{Base: NewBase(KindStateChanged), SessionID: sessionID, From: from, To: to}
}

// MessageFinalized carries a message appended to the conversation.
type MessageFinalized struct {
	Base
	ID        string
	Sender    string
	Text      string
	CreatedAt time.Time
}

// NewMessageFinalized creates a message finalized event.
func NewMessageFinalized(id, sender, text string, createdAt time.Time) MessageFinalized {
	return MessageFinalized{
		Base:      NewBase(KindMessageFinalized),
		ID:        id,
		Sender:    sender,
		Text:      text,
		CreatedAt: createdAt,
	}
}

// FieldsExtracted carries structured fields extracted from user input.
//
// Source is the message ID the fields were extracted from, or the document
// MIME type for document extraction.
type FieldsExtracted struct {
	Base
	Source string
	Fields map[string]string
}

// NewFieldsExtracted creates a fields extracted event.
func NewFieldsExtracted(source string, fields map[string]string) FieldsExtracted {
	return FieldsExtracted{Base: NewBase(KindFieldsExtracted), Source: source, Fields: fields}
}

// Failure reports a torn down live session.
type Failure struct {
	Base
	ErrorKind string
	Message   string
}

// NewFailure creates a failure event.
func NewFailure(errorKind, message string) Failure {
	return Failure{Base: NewBase(KindFailure), ErrorKind: errorKind, Message: message}
}
