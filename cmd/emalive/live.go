package main

import (
	"context"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"
	live "github.com/koscakluka/ema-live/core"
	"github.com/spf13/cobra"
)

func newLiveCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Open the conversation window",
		Long:  "Opens an interactive conversation. Press ctrl+l to start or stop talking live, type and press enter to send text while live is off.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLive(cmd, flags)
		},
	}
}

func runLive(cmd *cobra.Command, flags *rootFlags) error {
	cfg, err := flags.loadConfig()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	d, err := openDevices(cfg)
	if err != nil {
		return err
	}
	defer d.Close()

	relay := &programRelay{}
	conversation, closeConversation, err := newConversation(ctx, cfg, d,
		live.WithMessageCallback(func(message live.Message) { relay.send(messageMsg(message)) }),
		live.WithStateChangedCallback(func(_, to live.State) { relay.send(stateMsg(to)) }),
		live.WithErrorCallback(func(err *live.SessionError) { relay.send(errorMsg{err: err}) }),
		live.WithFieldsExtractedCallback(func(_ string, fields map[string]string) { relay.send(fieldsMsg(fields)) }),
	)
	if err != nil {
		return err
	}
	defer closeConversation()

	program := tea.NewProgram(
		newModel(ctx, conversation),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	relay.program.Store(program)

	_, err = program.Run()
	return err
}

// programRelay forwards conversation callbacks, which run on conversation
// goroutines, into the program's update loop.
type programRelay struct {
	program atomic.Pointer[tea.Program]
}

func (r *programRelay) send(msg tea.Msg) {
	if program := r.program.Load(); program != nil {
		program.Send(msg)
	}
}
