package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/LittleBoy9/peerbeam/internal/identity"
	"github.com/LittleBoy9/peerbeam/internal/mesh"
)

// Session is the slice of the mesh coordinator the chat screen drives.
type Session interface {
	Self() identity.Identity
	Events() <-chan mesh.Event
	SendMessage(text string) (mesh.ChatMessage, error)
	Roster() []mesh.RosterEntry
}

type lineKind int

const (
	lineChat lineKind = iota
	lineSystem
	lineNotice
)

type chatLine struct {
	kind   lineKind
	ts     time.Time
	sender string
	self   bool
	text   string
}

// Messages fed into the model from outside the Bubble Tea loop.
type meshEventMsg struct {
	ev mesh.Event
}

type eventsClosedMsg struct{}

type sendResultMsg struct {
	msg mesh.ChatMessage
	err error
}

// ChatModel is the Bubble Tea model for an interactive chat session.
type ChatModel struct {
	session   Session
	roomID    string
	transport string

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	lines  []chatLine
	roster []mesh.RosterEntry
	status string

	width  int
	height int
	ready  bool
}

// NewChatModel builds the chat screen for an already joined session.
func NewChatModel(session Session, roomID, transport string) *ChatModel {
	ti := textinput.New()
	ti.Placeholder = "say something"
	ti.Prompt = "> "
	ti.CharLimit = 512
	ti.Focus()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = SpinnerStyle

	return &ChatModel{
		session:   session,
		roomID:    roomID,
		transport: transport,
		input:     ti,
		spinner:   s,
	}
}

func (m *ChatModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		m.spinner.Tick,
		m.listenEvents(),
	)
}

// listenEvents turns coordinator events into Bubble Tea messages, one at a
// time. The command re-arms itself from Update after every delivery.
func (m *ChatModel) listenEvents() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.session.Events()
		if !ok {
			return eventsClosedMsg{}
		}
		return meshEventMsg{ev: ev}
	}
}

func (m *ChatModel) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		msg, err := m.session.SendMessage(text)
		return sendResultMsg{msg: msg, err: err}
	}
}

func (m *ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			text := strings.TrimSpace(m.input.Value())
			if text != "" {
				cmds = append(cmds, m.sendCmd(text))
				m.input.Reset()
			}

		case "up", "down", "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			cmds = append(cmds, cmd)

		default:
			var cmd tea.Cmd
			m.input, cmd = m.input.Update(msg)
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		// Header, roster, input, and footer each take a line.
		content := max(msg.Height-4, 1)
		if !m.ready {
			m.viewport = viewport.New(msg.Width, content)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = content
		}
		m.input.Width = max(msg.Width-4, 10)
		m.refreshContent()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case meshEventMsg:
		m.handleEvent(msg.ev)
		cmds = append(cmds, m.listenEvents())

	case eventsClosedMsg:
		return m, tea.Quit

	case sendResultMsg:
		if msg.err != nil {
			m.appendLine(chatLine{kind: lineNotice, text: fmt.Sprintf("send failed: %v", msg.err)})
		} else {
			m.appendLine(chatLine{
				kind:   lineChat,
				ts:     msg.msg.Time(),
				sender: msg.msg.SenderName,
				self:   true,
				text:   msg.msg.Text,
			})
		}
	}

	return m, tea.Batch(cmds...)
}

func (m *ChatModel) handleEvent(ev mesh.Event) {
	switch ev := ev.(type) {
	case mesh.RoomJoined:
		switch n := len(ev.Peers); n {
		case 0:
			m.appendLine(chatLine{kind: lineSystem, text: fmt.Sprintf("joined %s, nobody else here yet", ev.RoomID)})
		case 1:
			m.appendLine(chatLine{kind: lineSystem, text: fmt.Sprintf("joined %s, 1 peer already here", ev.RoomID)})
		default:
			m.appendLine(chatLine{kind: lineSystem, text: fmt.Sprintf("joined %s, %d peers already here", ev.RoomID, n)})
		}

	case mesh.PeerConnected:
		m.roster = m.session.Roster()
		m.appendLine(chatLine{kind: lineSystem, text: fmt.Sprintf("%s connected", displayName(ev.Peer))})

	case mesh.PeerUpdated:
		m.roster = m.session.Roster()

	case mesh.PeerLeft:
		m.roster = m.session.Roster()
		m.appendLine(chatLine{kind: lineSystem, text: fmt.Sprintf("%s left", displayName(ev.Peer))})

	case mesh.PeerFailed:
		m.roster = m.session.Roster()
		name := ev.PeerName
		if name == "" {
			name = shortID(ev.PeerID)
		}
		m.appendLine(chatLine{kind: lineNotice, text: fmt.Sprintf("could not reach %s: %v", name, ev.Err)})

	case mesh.MessageReceived:
		m.appendLine(chatLine{
			kind:   lineChat,
			ts:     ev.Message.Time(),
			sender: ev.Message.SenderName,
			text:   ev.Message.Text,
		})

	case mesh.TransportClosed:
		m.status = "rendezvous lost; open chats stay up, no new peers"
	}
}

func (m *ChatModel) appendLine(line chatLine) {
	m.lines = append(m.lines, line)
	m.refreshContent()
}

func (m *ChatModel) refreshContent() {
	if !m.ready {
		return
	}
	stick := m.viewport.AtBottom()

	var b strings.Builder
	wrap := lipgloss.NewStyle().Width(m.viewport.Width)
	for _, line := range m.lines {
		b.WriteString(wrap.Render(m.renderLine(line)))
		b.WriteString("\n")
	}
	m.viewport.SetContent(b.String())

	if stick {
		m.viewport.GotoBottom()
	}
}

func (m *ChatModel) renderLine(line chatLine) string {
	switch line.kind {
	case lineSystem:
		return SystemStyle.Render("· " + line.text)
	case lineNotice:
		return WarningStyle.Render(IconWarning + " " + line.text)
	}

	nameStyle := PeerNameStyle
	if line.self {
		nameStyle = SelfNameStyle
	}
	return fmt.Sprintf("%s %s %s",
		TimestampStyle.Render(line.ts.Format("15:04")),
		nameStyle.Render(line.sender+":"),
		line.text,
	)
}

func (m *ChatModel) View() string {
	if !m.ready {
		return "\n  " + m.spinner.View() + " setting up..."
	}

	var b strings.Builder
	b.WriteString(m.headerView())
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")
	b.WriteString(m.rosterView())
	b.WriteString("\n")
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.footerView())
	return b.String()
}

func (m *ChatModel) headerView() string {
	self := m.session.Self()
	who := self.Name
	if who == "" {
		who = shortID(self.ID)
	}
	title := fmt.Sprintf("%s peerbeam  %s %s  (%s)  you: %s", IconChat, IconRoom, m.roomID, m.transport, who)
	return HeaderStyle.Render(title)
}

func (m *ChatModel) rosterView() string {
	if len(m.roster) == 0 {
		return MutedStyle.Render(fmt.Sprintf("%s nobody else yet", IconPeer))
	}

	parts := make([]string, 0, len(m.roster))
	for _, entry := range m.roster {
		name := displayName(entry)
		switch {
		case entry.ChannelOpen:
			parts = append(parts, SuccessStyle.Render("●")+" "+name)
		case entry.State == mesh.StateNegotiating:
			parts = append(parts, m.spinner.View()+" "+MutedStyle.Render(name))
		default:
			parts = append(parts, MutedStyle.Render("○ "+name))
		}
	}

	label := fmt.Sprintf("%s %d ", IconPeer, len(m.roster))
	return label + strings.Join(parts, "  ")
}

func (m *ChatModel) footerView() string {
	if m.status != "" {
		return WarningStyle.Render(IconWarning + " " + m.status)
	}
	return FooterStyle.Render("enter to send · esc to leave")
}

// RunChat runs the chat screen until the user leaves or the session ends.
func RunChat(session Session, roomID, transport string) error {
	model := NewChatModel(session, roomID, transport)
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("chat screen: %w", err)
	}
	return nil
}

func displayName(entry mesh.RosterEntry) string {
	if entry.Name != "" {
		return entry.Name
	}
	return shortID(entry.ID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
