package main

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	live "github.com/koscakluka/ema-live/core"
	"github.com/muesli/reflow/wordwrap"
)

type (
	messageMsg live.Message
	stateMsg   live.State
	fieldsMsg  map[string]string
	errorMsg   struct{ err error }

	textTurnDoneMsg struct{ err error }
	liveToggledMsg  struct{ err error }
)

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	statusStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	liveStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// conversationController is the part of the conversation the window drives.
type conversationController interface {
	StartLive(ctx context.Context) error
	StopLive(ctx context.Context) error
	SendText(ctx context.Context, text string) (live.Message, error)
	LiveState() live.State
}

type model struct {
	ctx          context.Context
	conversation conversationController

	viewport viewport.Model
	input    textinput.Model

	messages []live.Message
	fields   map[string]string
	state    live.State
	lastErr  string
	sending  bool
	width    int
}

func newModel(ctx context.Context, conversation conversationController) model {
	input := textinput.New()
	input.Placeholder = "Type a message, or ctrl+l to talk live"
	input.Focus()

	return model{
		ctx:          ctx,
		conversation: conversation,
		viewport:     viewport.New(80, 20),
		input:        input,
		fields:       map[string]string{},
		state:        conversation.LiveState(),
		width:        80,
	}
}

func (m model) Init() tea.Cmd {
	return textinput.Blink
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlL:
			return m, m.toggleLive()
		case tea.KeyEnter:
			return m.submit()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(msg.Height-3, 1)
		m.input.Width = max(msg.Width-4, 1)
		m.refresh()
		return m, nil

	case messageMsg:
		m.messages = append(m.messages, live.Message(msg))
		m.refresh()
		return m, nil

	case stateMsg:
		m.state = live.State(msg)
		if m.state == live.StateConnecting {
			m.lastErr = ""
		}
		return m, nil

	case fieldsMsg:
		maps.Copy(m.fields, msg)
		return m, nil

	case errorMsg:
		m.lastErr = userMessage(msg.err)
		return m, nil

	case textTurnDoneMsg:
		m.sending = false
		if msg.err != nil {
			m.lastErr = userMessage(msg.err)
		}
		return m, nil

	case liveToggledMsg:
		if msg.err != nil {
			m.lastErr = userMessage(msg.err)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m model) toggleLive() tea.Cmd {
	ctx, conversation := m.ctx, m.conversation
	if m.state.IsActive() {
		return func() tea.Msg { return liveToggledMsg{err: conversation.StopLive(ctx)} }
	}
	return func() tea.Msg { return liveToggledMsg{err: conversation.StartLive(ctx)} }
}

func (m model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if m.state.IsActive() {
		m.lastErr = "Text input is disabled while talking live. Press ctrl+l to stop."
		return m, nil
	}
	if m.sending {
		return m, nil
	}

	m.input.Reset()
	m.sending = true
	m.lastErr = ""

	ctx, conversation := m.ctx, m.conversation
	return m, func() tea.Msg {
		_, err := conversation.SendText(ctx, text)
		return textTurnDoneMsg{err: err}
	}
}

func (m *model) refresh() {
	m.viewport.SetContent(renderMessages(m.messages, m.width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	return m.viewport.View() + "\n" + m.statusLine() + "\n" + m.input.View()
}

func (m model) statusLine() string {
	var parts []string
	if m.state.IsActive() {
		parts = append(parts, liveStyle.Render("● live "+m.state.String()))
	} else {
		parts = append(parts, statusStyle.Render("text mode"))
	}
	if m.sending {
		parts = append(parts, statusStyle.Render("waiting for reply…"))
	}
	if len(m.fields) > 0 {
		parts = append(parts, statusStyle.Render(fmt.Sprintf("%d fields collected", len(m.fields))))
	}
	if m.lastErr != "" {
		parts = append(parts, errorStyle.Render(m.lastErr))
	}
	return strings.Join(parts, statusStyle.Render(" · "))
}

func renderMessages(messages []live.Message, width int) string {
	wrapAt := max(width-2, 10)

	var b strings.Builder
	for i, message := range messages {
		if i > 0 {
			b.WriteString("\n")
		}
		label := assistantStyle.Render("Assistant")
		if message.Sender == live.SenderUser {
			label = userStyle.Render("You")
		}
		b.WriteString(label + "\n")
		b.WriteString(wordwrap.String(message.Text, wrapAt) + "\n")
	}
	return b.String()
}

func userMessage(err error) string {
	var sessionErr *live.SessionError
	if errors.As(err, &sessionErr) {
		return sessionErr.UserMessage()
	}
	switch {
	case errors.Is(err, live.ErrTextTurnInFlight):
		return "Wait for the current reply before talking live."
	case errors.Is(err, live.ErrLiveActive):
		return "Text input is disabled while talking live."
	}
	return err.Error()
}
