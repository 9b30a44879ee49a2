package live

import "github.com/koscakluka/ema-live/core/events"

type eventEmitter func(events.Event)

func newCallbackEventEmitter(opts options) eventEmitter {
	return func(event events.Event) {
		if opts.onEvent != nil {
			opts.onEvent(event)
		}

		switch typedEvent := event.(type) {
		case events.StateChanged:
			if opts.onStateChanged != nil {
				opts.onStateChanged(parseState(typedEvent.From), parseState(typedEvent.To))
			}
		case events.MessageFinalized:
			if opts.onMessage != nil {
				opts.onMessage(Message{
					ID:        typedEvent.ID,
					Sender:    Sender(typedEvent.Sender),
					Text:      typedEvent.Text,
					CreatedAt: typedEvent.CreatedAt,
				})
			}
		case events.FieldsExtracted:
			if opts.onFieldsExtracted != nil {
				opts.onFieldsExtracted(typedEvent.Source, typedEvent.Fields)
			}
		}
	}
}

func messageFinalizedEvent(message Message) events.MessageFinalized {
	return events.NewMessageFinalized(message.ID, string(message.Sender), message.Text, message.CreatedAt)
}

func stateChangedEvent(sessionID string, from, to State) events.StateChanged {
	return events.NewStateChanged(sessionID, from.String(), to.String())
}
