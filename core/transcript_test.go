package live

import (
	"testing"
	"time"
)

func TestTranscriptFinalizeEmitsUserThenAssistant(t *testing.T) {
	var transcript transcriptAssembler
	for _, delta := range []string{"What", " is my", " rate"} {
		transcript.AppendUser(delta)
	}
	for _, delta := range []string{"Let me", " check", " that"} {
		transcript.AppendAssistant(delta)
	}

	messages := transcript.Finalize(time.Now())

	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	if messages[0].Sender != SenderUser || messages[0].Text != "What is my rate" {
		t.Fatalf("expected user message %q, got %+v", "What is my rate", messages[0])
	}
	if messages[1].Sender != SenderAssistant || messages[1].Text != "Let me check that" {
		t.Fatalf("expected assistant message %q, got %+v", "Let me check that", messages[1])
	}
	if messages[0].ID == "" || messages[0].ID == messages[1].ID {
		t.Fatalf("expected distinct message ids, got %q and %q", messages[0].ID, messages[1].ID)
	}
}

func TestTranscriptFinalizeClearsBuffers(t *testing.T) {
	var transcript transcriptAssembler
	transcript.AppendUser("hello")
	transcript.AppendAssistant("hi there")

	transcript.Finalize(time.Now())

	if transcript.User() != "" || transcript.Assistant() != "" {
		t.Fatalf("expected both buffers to be empty, got user=%q assistant=%q", transcript.User(), transcript.Assistant())
	}
	if !transcript.IsEmpty() {
		t.Fatalf("expected transcript to report empty")
	}
}

func TestTranscriptFinalizeSkipsEmptySpeaker(t *testing.T) {
	var transcript transcriptAssembler
	transcript.AppendAssistant("Your rate is fixed.")

	messages := transcript.Finalize(time.Now())

	if len(messages) != 1 || messages[0].Sender != SenderAssistant {
		t.Fatalf("expected a single assistant message, got %+v", messages)
	}
}

func TestTranscriptFinalizeWithNothingAccumulated(t *testing.T) {
	var transcript transcriptAssembler
	transcript.AppendUser("  ")

	if messages := transcript.Finalize(time.Now()); len(messages) != 0 {
		t.Fatalf("expected no messages, got %+v", messages)
	}
	if transcript.User() != "" {
		t.Fatalf("expected whitespace residue to be cleared, got %q", transcript.User())
	}
}
