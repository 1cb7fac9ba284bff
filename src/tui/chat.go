// Package tui is the terminal chat front end.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"pdfchat/src/core/answer"
	"pdfchat/src/core/chat"
	"pdfchat/src/core/rag"
)

// Asker is the part of chat.Service the UI needs.
type Asker interface {
	Ask(ctx context.Context, q rag.Query) (*chat.Reply, error)
}

type replyMsg struct {
	reply *chat.Reply
	err   error
}

type incrementMsg struct {
	inc answer.Increment
}

type doneMsg struct {
	text string
	err  error
}

// Model keeps the conversation in memory for the lifetime of the program.
type Model struct {
	ctx      context.Context
	service  Asker
	title    string
	input    textarea.Model
	viewport viewport.Model
	history  []rag.Turn
	pending  string
	partial  string
	stream   *answer.Stream
	status   string
	ready    bool
}

func New(ctx context.Context, service Asker, title string) Model {
	ta := textarea.New()
	ta.Placeholder = "Ask a question about your documents"
	ta.Prompt = "┃ "
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(2)
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	return Model{
		ctx:      ctx,
		service:  service,
		title:    title,
		input:    ta,
		viewport: viewport.New(0, 0),
		status:   "Enter to send, Esc to stop an answer, Ctrl+C to quit.",
	}
}

func (m Model) Init() tea.Cmd { return textarea.Blink }

// History returns the completed turns so far.
func (m Model) History() []rag.Turn {
	return m.history
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		m.input.SetWidth(msg.Width)
		_, vh := transcriptStyle.GetFrameSize()
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-m.input.Height()-vh-3)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD:
			if m.stream != nil {
				m.stream.Close()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.stream != nil {
				st := m.stream
				m.status = "Stopping..."
				return m, func() tea.Msg { st.Close(); return nil }
			}
			return m, nil
		case tea.KeyEnter:
			if m.stream != nil || m.pending != "" {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			if text == "" {
				return m, nil
			}
			m.input.Reset()
			m.pending = text
			m.partial = ""
			m.status = "Searching..."
			m.refresh()
			return m, m.ask(rag.Query{Message: text, History: m.history})
		}

	case replyMsg:
		if msg.err != nil {
			m.pending = ""
			m.status = "Error: " + msg.err.Error()
			m.refresh()
			return m, nil
		}
		m.stream = msg.reply.Stream
		m.status = fmt.Sprintf("Answering from %d passages...", len(msg.reply.Knowledge))
		return m, waitForIncrement(m.stream)

	case incrementMsg:
		m.partial = msg.inc.Text
		m.refresh()
		return m, waitForIncrement(m.stream)

	case doneMsg:
		m.stream = nil
		text := msg.text
		switch {
		case msg.err != nil && errors.Is(msg.err, context.Canceled):
			m.status = "Stopped."
		case msg.err != nil:
			m.status = "Error: " + msg.err.Error()
		default:
			m.status = "Ready."
		}
		if text != "" || msg.err == nil {
			m.history = append(m.history,
				rag.Turn{Role: rag.RoleUser, Content: m.pending},
				rag.Turn{Role: rag.RoleAssistant, Content: text},
			)
		}
		m.pending = ""
		m.partial = ""
		m.refresh()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := titleStyle.Render(m.title)
	status := statusStyle.Render(m.status)
	return header + "\n" + transcriptStyle.Render(m.viewport.View()) + "\n" + m.input.View() + "\n" + status
}

func (m Model) ask(q rag.Query) tea.Cmd {
	return func() tea.Msg {
		reply, err := m.service.Ask(m.ctx, q)
		return replyMsg{reply: reply, err: err}
	}
}

func waitForIncrement(st *answer.Stream) tea.Cmd {
	return func() tea.Msg {
		inc, ok := <-st.Increments()
		if !ok {
			return doneMsg{text: st.Text(), err: st.Err()}
		}
		return incrementMsg{inc: inc}
	}
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.transcript())
	m.viewport.GotoBottom()
}

func (m Model) transcript() string {
	width := max(20, m.viewport.Width-2)
	var b strings.Builder
	for _, t := range m.history {
		b.WriteString(renderTurn(t.Role, t.Content, width))
	}
	if m.pending != "" {
		b.WriteString(renderTurn(rag.RoleUser, m.pending, width))
		if m.partial != "" {
			b.WriteString(renderTurn(rag.RoleAssistant, m.partial, width))
		}
	}
	if b.Len() == 0 {
		return hintStyle.Render("No messages yet.")
	}
	return b.String()
}

func renderTurn(role, content string, width int) string {
	label := userStyle.Render("You")
	if role == rag.RoleAssistant {
		label = assistantStyle.Render("Assistant")
	}
	return label + "\n" + lipgloss.NewStyle().Width(width).Render(content) + "\n\n"
}

var (
	titleStyle      = lipgloss.NewStyle().Bold(true)
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	hintStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("8")).Italic(true)
	userStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	assistantStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
)
