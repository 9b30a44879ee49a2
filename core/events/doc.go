// Package events defines the typed event contract of a live voice
// conversation.
//
// Event kinds are grouped by namespace:
//
//   - live.*: inbound events received from the remote conversational
//     speech service over an open session.
//   - conversation.*: events the conversation hands to the surrounding
//     application for display and form population.
//
// Semantics used across the package:
//
//   - Delta: an incremental fragment belonging to the current turn. Audio
//     deltas carry base64 linear16 payloads, transcript deltas carry text in
//     emission order.
//   - Complete: the remote side finished delivering the current turn; every
//     delta for the turn was delivered before it.
//   - Finalized: immutable record produced locally from accumulated deltas.
//
// live events
//
//   - SessionReady (live.ready): the remote channel finished its setup and
//     accepts audio.
//   - AudioDelta (live.audio_delta): a chunk of synthesized assistant speech.
//   - InputTranscript (live.input_transcript): partial transcription of what
//     the user said.
//   - OutputTranscript (live.output_transcript): partial transcription of
//     what the assistant is saying.
//   - TurnComplete (live.turn_complete): the assistant utterance for the turn
//     fully arrived.
//   - Interrupted (live.interrupted): the user started speaking over the
//     assistant; queued assistant speech must stop.
//   - SessionClosed (live.closed): the remote side closed the channel.
//   - SessionError (live.error): the remote side reported a failure.
//
// conversation events
//
//   - StateChanged (conversation.state_changed): live session state
//     transition.
//   - MessageFinalized (conversation.message_finalized): a message was
//     appended to the conversation.
//   - FieldsExtracted (conversation.fields_extracted): structured data was
//     extracted from user input or a document.
//   - Failure (conversation.failure): a live session failed and was torn
//     down; carries the message to show the user.
package events
