package ui

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ChattingLord/roomlink/internal/chat"
	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/presence"
	"github.com/ChattingLord/roomlink/internal/session"
	"github.com/ChattingLord/roomlink/internal/utils"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// typingIdle is how long the input may sit untouched before typing-stop is
// sent.
const typingIdle = time.Second

const rosterWidth = 34

// Room is the session surface the chat view drives.
type Room interface {
	SendText(text string) error
	SendFile(path string) error
	ToggleVideo() (bool, error)
	ToggleAudio() (bool, error)
	SetTyping(typing bool) error
	Leave() error
}

type actionMsg struct {
	notice string
	err    error
}

type typingIdleMsg struct {
	seq int
}

type leftMsg struct{}

// ChatModel is the interactive room view: timeline, roster, typing line and
// input. Its state is fed only by session changes.
type ChatModel struct {
	room   Room
	self   string
	roomID string
	link   string

	participants []presence.Participant
	peers        map[string]mesh.Peer
	messages     []chat.Message
	seen         map[string]bool
	typing       []string
	connected    bool

	viewport viewport.Model
	input    textinput.Model
	ready    bool
	width    int
	height   int

	localTyping bool
	typingSeq   int

	notice   string
	overlay  string
	err      error
	quitting bool
}

// NewChatModel builds the view from the session's state at the time the
// program starts.
func NewChatModel(room Room, snap session.Snapshot, link string) ChatModel {
	input := textinput.New()
	input.Placeholder = "Message the room, or /help"
	input.Prompt = "› "
	input.CharLimit = 4000
	input.Focus()

	peers := make(map[string]mesh.Peer, len(snap.Peers))
	for _, p := range snap.Peers {
		peers[p.ID] = p
	}

	seen := make(map[string]bool, len(snap.Messages))
	for _, msg := range snap.Messages {
		seen[msg.ID] = true
	}

	return ChatModel{
		room:         room,
		self:         snap.Self,
		roomID:       snap.Room,
		link:         link,
		participants: snap.Participants,
		peers:        peers,
		messages:     snap.Messages,
		seen:         seen,
		typing:       snap.Typing,
		connected:    snap.Connected,
		input:        input,
	}
}

// Err returns why the session ended, or nil after a normal leave.
func (m ChatModel) Err() error {
	return m.err
}

// Messages returns the timeline as the view last saw it.
func (m ChatModel) Messages() []chat.Message {
	return m.messages
}

func (m ChatModel) Participants() []presence.Participant {
	return m.participants
}

func (m ChatModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m ChatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, m.leave()

		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			m.overlay = ""
			if line == "" {
				return m, nil
			}
			if cmd, ok := parseCommand(line); ok {
				return m.runCommand(cmd)
			}
			m.localTyping = false
			return m, m.sendText(unescape(line))

		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}

		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd, m.typed())

	case typingIdleMsg:
		if msg.seq == m.typingSeq && m.localTyping {
			m.localTyping = false
			cmds = append(cmds, m.setTyping(false))
		}

	case changeMsg:
		if cmd := m.apply(msg.change); cmd != nil {
			return m, cmd
		}

	case actionMsg:
		m.notice = msg.notice
		if msg.err != nil {
			m.notice = FormatError(msg.err)
		}

	case leftMsg:
		m.quitting = true
		return m, tea.Quit

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// typed announces typing on the first keystroke and schedules the idle stop.
func (m *ChatModel) typed() tea.Cmd {
	if m.input.Value() == "" {
		return nil
	}

	var cmds []tea.Cmd
	if !m.localTyping {
		m.localTyping = true
		cmds = append(cmds, m.setTyping(true))
	}

	m.typingSeq++
	seq := m.typingSeq
	cmds = append(cmds, tea.Tick(typingIdle, func(time.Time) tea.Msg {
		return typingIdleMsg{seq: seq}
	}))
	return tea.Batch(cmds...)
}

func (m *ChatModel) apply(c session.Change) tea.Cmd {
	switch c := c.(type) {
	case session.RosterChanged:
		m.participants = c.Participants
	case session.MessageAdded:
		// Changes queued before the program started may repeat the
		// initial snapshot.
		if m.seen[c.Message.ID] {
			return nil
		}
		m.seen[c.Message.ID] = true
		m.messages = append(m.messages, c.Message)
		m.refresh()
	case session.TypingChanged:
		m.typing = c.Typing
	case session.PeerChanged:
		m.peers[c.Peer.ID] = c.Peer
	case session.PeerRemoved:
		delete(m.peers, c.ID)
	case session.ConnectivityChanged:
		m.connected = c.Connected
	case session.RelayError:
		m.notice = FormatError(errors.New(c.Message))
	case session.SessionClosed:
		m.err = c.Err
		m.quitting = true
		return tea.Quit
	}
	return nil
}

func (m ChatModel) runCommand(c command) (tea.Model, tea.Cmd) {
	switch c.name {
	case "help":
		m.notice = MutedStyle.Render(helpText)

	case "file":
		if len(c.args) == 0 {
			m.notice = FormatError(errors.New("usage: /file <path>"))
			return m, nil
		}
		path := strings.Join(c.args, " ")
		room := m.room
		return m, func() tea.Msg {
			if err := room.SendFile(path); err != nil {
				return actionMsg{err: err}
			}
			return actionMsg{notice: fmt.Sprintf("%s Sent %s", IconFile, path)}
		}

	case "video":
		room := m.room
		return m, func() tea.Msg {
			on, err := room.ToggleVideo()
			return actionMsg{notice: "Video " + onOff(on), err: err}
		}

	case "audio":
		room := m.room
		return m, func() tea.Msg {
			on, err := room.ToggleAudio()
			return actionMsg{notice: "Audio " + onOff(on), err: err}
		}

	case "who":
		peers := make([]mesh.Peer, 0, len(m.peers))
		for _, p := range m.peers {
			peers = append(peers, p)
		}
		m.overlay = NewRosterTable(m.participants, peers).View()

	case "save":
		return m.save(c.args)

	case "quit", "leave", "exit":
		return m, m.leave()

	default:
		m.notice = FormatError(fmt.Errorf("unknown command /%s (try /help)", c.name))
	}
	return m, nil
}

// save writes the n-th attachment of the timeline to disk.
func (m ChatModel) save(args []string) (tea.Model, tea.Cmd) {
	if len(args) == 0 {
		m.notice = FormatError(errors.New("usage: /save <n> [dir]"))
		return m, nil
	}

	n, err := strconv.Atoi(args[0])
	attachments := m.attachments()
	if err != nil || n < 1 || n > len(attachments) {
		m.notice = FormatError(fmt.Errorf("no attachment #%s", args[0]))
		return m, nil
	}

	dir := "."
	if len(args) > 1 {
		dir = strings.Join(args[1:], " ")
	}

	a := attachments[n-1]
	return m, func() tea.Msg {
		path, err := a.Save(dir)
		if err != nil {
			return actionMsg{err: fmt.Errorf("save %s: %w", a.Name, err)}
		}
		return actionMsg{notice: fmt.Sprintf("%s Saved %s", IconSuccess, path)}
	}
}

func (m ChatModel) attachments() []*chat.Attachment {
	var out []*chat.Attachment
	for _, msg := range m.messages {
		if msg.Attachment != nil {
			out = append(out, msg.Attachment)
		}
	}
	return out
}

func (m ChatModel) sendText(text string) tea.Cmd {
	room := m.room
	return func() tea.Msg {
		if err := room.SendText(text); err != nil {
			return actionMsg{err: err}
		}
		return nil
	}
}

func (m ChatModel) setTyping(typing bool) tea.Cmd {
	room := m.room
	return func() tea.Msg {
		if err := room.SetTyping(typing); err != nil {
			return actionMsg{err: err}
		}
		return nil
	}
}

func (m ChatModel) leave() tea.Cmd {
	room := m.room
	return func() tea.Msg {
		room.Leave()
		return leftMsg{}
	}
}

func (m *ChatModel) resize(width, height int) {
	m.width, m.height = width, height

	// header, typing line, notice line, input, footer, chat box border
	vw := max(width-rosterWidth-4, 20)
	vh := max(height-8, 3)

	if !m.ready {
		m.viewport = viewport.New(vw, vh)
		m.ready = true
	} else {
		m.viewport.Width, m.viewport.Height = vw, vh
	}
	m.input.Width = max(width-4, 10)
	m.refresh()
}

// refresh re-renders the timeline and keeps the newest message in view.
func (m *ChatModel) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(m.renderTimeline())
	m.viewport.GotoBottom()
}

func (m ChatModel) renderTimeline() string {
	if len(m.messages) == 0 {
		return MutedStyle.Render("No messages yet. Say hi!")
	}

	lines := make([]string, 0, len(m.messages))
	attachment := 0
	for _, msg := range m.messages {
		if msg.Kind == chat.KindSystem {
			lines = append(lines, SystemMessageStyle.Render("· "+msg.Text))
			continue
		}

		name := presence.DisplayName(msg.SenderID)
		if msg.Mine {
			name = "You"
		}
		head := TimestampStyle.Render(msg.Timestamp.Local().Format("15:04")) + " " +
			ParticipantStyle(presence.Color(msg.SenderID)).Render(name) + ": "

		body := msg.Text
		if msg.Attachment != nil {
			attachment++
			body = AttachmentStyle.Render(fmt.Sprintf("%s %s (%s) #%d",
				IconFile, msg.Attachment.Name, utils.FormatSize(msg.Attachment.Size), attachment))
		}
		lines = append(lines, head+body)
	}
	return strings.Join(lines, "\n")
}

func (m ChatModel) renderRoster() string {
	var b strings.Builder
	b.WriteString(TitleStyle.Render(fmt.Sprintf("%s %d in room", IconPeer, len(m.participants))))
	b.WriteString("\n\n")
	for _, p := range m.participants {
		var peer *mesh.Peer
		if l, ok := m.peers[p.ID]; ok {
			peer = &l
		}
		b.WriteString(participantLine(p, peer) + "\n")
	}
	return RosterBoxStyle.Width(rosterWidth).Render(strings.TrimRight(b.String(), "\n"))
}

// typingLine names who else is typing.
func typingLine(ids []string) string {
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = presence.DisplayName(id)
	}

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + " and " + names[1] + " are typing…"
	default:
		return "Several people are typing…"
	}
}

func (m ChatModel) View() string {
	if m.quitting {
		return ""
	}
	if !m.ready {
		return "Loading room…"
	}

	status := StatusStyle.Render("online")
	if !m.connected {
		status = OfflineStatusStyle.Render("reconnecting")
	}
	header := lipgloss.JoinHorizontal(lipgloss.Center,
		HeaderStyle.Render(fmt.Sprintf("%s %s", IconRoom, m.roomID)), " ", status)
	if m.link != "" {
		header += "  " + MutedStyle.Render(IconLink+" "+m.link)
	}

	body := lipgloss.JoinHorizontal(lipgloss.Top,
		ChatBoxStyle.Render(m.viewport.View()),
		m.renderRoster(),
	)

	var b strings.Builder
	b.WriteString(header + "\n")
	b.WriteString(body + "\n")
	if m.overlay != "" {
		b.WriteString(m.overlay + "\n")
	}
	b.WriteString(TypingStyle.Render(typingLine(m.typing)) + "\n")
	b.WriteString(m.notice + "\n")
	b.WriteString(InputBoxStyle.Render(m.input.View()) + "\n")
	b.WriteString(FooterStyle.Render("enter send · pgup/pgdn scroll · /help · esc leave"))
	return b.String()
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
