package live

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures of the live conversation pipeline.
type ErrorKind string

const (
	KindPermissionDenied  ErrorKind = "permission_denied"
	KindDeviceUnavailable ErrorKind = "device_unavailable"
	KindConnectionFailed  ErrorKind = "connection_failed"
	KindConnectionLost    ErrorKind = "connection_lost"
	KindDecodeFailed      ErrorKind = "decode_failed"
	KindSynthesisFailed   ErrorKind = "synthesis_failed"
)

var (
	ErrPermissionDenied  = errors.New("microphone permission denied")
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	ErrConnectionFailed  = errors.New("failed to connect to live session")
	ErrConnectionLost    = errors.New("live session connection lost")
	ErrDecodeFailed      = errors.New("failed to decode session audio")
	ErrSynthesisFailed   = errors.New("speech synthesis failed")
)

var (
	ErrSessionActive    = errors.New("live session already active")
	ErrLiveActive       = errors.New("text input is disabled while a live session is active")
	ErrTextTurnInFlight = errors.New("text turn in progress")
	ErrClosed           = errors.New("conversation closed")
	ErrNotConfigured    = errors.New("not configured")
	ErrReadyTimeout     = errors.New("live session did not become ready")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindPermissionDenied:
		return ErrPermissionDenied
	case KindDeviceUnavailable:
		return ErrDeviceUnavailable
	case KindConnectionFailed:
		return ErrConnectionFailed
	case KindConnectionLost:
		return ErrConnectionLost
	case KindDecodeFailed:
		return ErrDecodeFailed
	case KindSynthesisFailed:
		return ErrSynthesisFailed
	}
	return nil
}

// SessionError is a classified failure. errors.Is matches both the sentinel
// for its kind and the underlying cause.
type SessionError struct {
	Kind ErrorKind
	Err  error
}

func (e *SessionError) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *SessionError) Unwrap() []error {
	errs := []error{}
	if sentinel := e.Kind.sentinel(); sentinel != nil {
		errs = append(errs, sentinel)
	}
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	return errs
}

// UserMessage returns the single human readable message shown when the
// failure ends a live conversation.
func (e *SessionError) UserMessage() string {
	switch e.Kind {
	case KindPermissionDenied:
		return "Microphone access was denied. Allow microphone access to talk live."
	case KindDeviceUnavailable:
		return "No microphone is available, so live conversation is unavailable."
	case KindConnectionFailed:
		return "Could not connect to the live conversation service. You can keep chatting by text."
	case KindConnectionLost:
		return "The live conversation was disconnected. You can keep chatting by text."
	case KindDecodeFailed:
		return "The assistant's audio could not be played, so the live conversation was stopped."
	case KindSynthesisFailed:
		return "The reply could not be spoken."
	}
	return "Live conversation is unavailable."
}

// classify wraps err into a SessionError. Errors already carrying a taxonomy
// sentinel keep their kind, anything else gets fallback.
func classify(err error, fallback ErrorKind) *SessionError {
	if err == nil {
		return nil
	}

	var sessionErr *SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr
	}

	for _, kind := range []ErrorKind{
		KindPermissionDenied,
		KindDeviceUnavailable,
		KindConnectionFailed,
		KindConnectionLost,
		KindDecodeFailed,
		KindSynthesisFailed,
	} {
		if errors.Is(err, kind.sentinel()) {
			return &SessionError{Kind: kind, Err: err}
		}
	}

	return &SessionError{Kind: fallback, Err: err}
}
