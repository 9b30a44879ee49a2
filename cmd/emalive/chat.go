package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	live "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/spf13/cobra"
)

func newChatCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "chat <text>",
		Short: "Send one text turn and speak the reply",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChat(cmd, flags, strings.Join(args, " "), timeout)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "max wait for the reply and its playback")
	return cmd
}

func runChat(cmd *cobra.Command, flags *rootFlags, text string, timeout time.Duration) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	d, err := openDevices(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	tracked := newTrackedSpeaker(d.speaker)
	d.speaker = tracked

	out := cmd.OutOrStdout()
	conversation, closeConversation, err := newConversation(ctx, cfg, d,
		live.WithFieldsExtractedCallback(func(source string, fields map[string]string) {
			if len(fields) > 0 {
				fmt.Fprintf(out, "\n%s", formatFields(fields))
			}
		}),
	)
	if err != nil {
		return err
	}
	defer closeConversation()

	reply, err := conversation.SendText(ctx, text)
	if reply.Text != "" {
		fmt.Fprintln(out, reply.Text)
	}
	var sessionErr *live.SessionError
	if errors.As(err, &sessionErr) {
		fmt.Fprintln(cmd.ErrOrStderr(), sessionErr.UserMessage())
		return nil
	}
	if err != nil {
		return err
	}

	tracked.wait(ctx)
	return nil
}

// trackedSpeaker lets the command wait for scheduled audio to finish before
// it releases the device.
type trackedSpeaker struct {
	live.Speaker

	wg sync.WaitGroup
}

func newTrackedSpeaker(speaker live.Speaker) *trackedSpeaker {
	return &trackedSpeaker{Speaker: speaker}
}

func (s *trackedSpeaker) Schedule(chunk audio.Chunk, startAt time.Time, onFinish func()) (live.Playback, error) {
	s.wg.Add(1)
	var once sync.Once
	done := func() { once.Do(s.wg.Done) }

	playback, err := s.Speaker.Schedule(chunk, startAt, func() {
		done()
		if onFinish != nil {
			onFinish()
		}
	})
	if err != nil {
		done()
		return nil, err
	}
	return &trackedPlayback{Playback: playback, done: done}, nil
}

func (s *trackedSpeaker) wait(ctx context.Context) {
	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
	case <-ctx.Done():
	}
}

type trackedPlayback struct {
	live.Playback
	done func()
}

func (p *trackedPlayback) Stop() {
	p.Playback.Stop()
	p.done()
}
