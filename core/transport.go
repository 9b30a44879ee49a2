package live

import (
	"context"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
)

// Transport opens bidirectional channels to the remote conversational speech
// service.
type Transport interface {
	Connect(ctx context.Context) (Channel, error)
}

// Channel is one connection to the remote service.
//
// Send transmits a frame without waiting for acknowledgement. Receive blocks
// until the next inbound event arrives, the context is cancelled or the
// channel fails. After the remote side closes the channel Receive delivers a
// [events.SessionClosed] and then returns errors.
type Channel interface {
	Send(frame audio.Frame) error
	Receive(ctx context.Context) (events.Inbound, error)
	Close() error
}
