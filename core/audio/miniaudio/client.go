// Package miniaudio provides the microphone and speaker of a live
// conversation on top of the miniaudio library.
package miniaudio

import (
	"fmt"

	"github.com/gen2brain/malgo"
	live "github.com/koscakluka/ema-live/core"
)

type Client struct {
	// audioContext is only saved to be able to uninitialize it, it is an
	// ownership thing
	audioContext *malgo.AllocatedContext
}

func NewClient() (*Client, error) {
	audioCtx, err := malgo.InitContext(
		nil,
		malgo.ContextConfig{},
		func(message string) { logger.Debug("malgo", "message", message) },
	)
	if err != nil {
		return nil, fmt.Errorf("%w: malgo init context failed: %w", live.ErrDeviceUnavailable, err)
	}

	return &Client{audioContext: audioCtx}, nil
}

// Microphone returns a microphone that acquires the default capture device
// each time it is opened.
func (c *Client) Microphone() *Microphone {
	return &Microphone{audioContext: c.audioContext}
}

func (c *Client) Close() {
	_ = c.audioContext.Uninit()
	c.audioContext.Free()
}
