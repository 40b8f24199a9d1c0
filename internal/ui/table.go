package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/ChattingLord/roomlink/internal/mesh"
	"github.com/ChattingLord/roomlink/internal/presence"
	"github.com/ChattingLord/roomlink/internal/utils"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/jedib0t/go-pretty/v6/text"
	prettytable "github.com/jedib0t/go-pretty/v6/table"
)

// RosterTable renders the room's participants with their media flags and
// link state.
type RosterTable struct {
	participants []presence.Participant
	peers        map[string]mesh.Peer
}

// NewRosterTable creates a roster table. Peers without a link show as
// pending.
func NewRosterTable(participants []presence.Participant, peers []mesh.Peer) *RosterTable {
	byID := make(map[string]mesh.Peer, len(peers))
	for _, p := range peers {
		byID[p.ID] = p
	}
	return &RosterTable{participants: participants, peers: byID}
}

// View renders the table as a string
func (t *RosterTable) View() string {
	if len(t.participants) == 0 {
		return MutedStyle.Render("Nobody here")
	}

	rows := make([][]string, 0, len(t.participants))
	for i, p := range t.participants {
		name := utils.TruncateString(p.Name, 24)
		if p.Self {
			name += " (you)"
		}
		rows = append(rows, []string{
			fmt.Sprintf("%d", i+1),
			name,
			videoIcon(p.VideoOn),
			audioIcon(p.AudioOn),
			t.linkLabel(p),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers("#", "Name", "Video", "Audio", "Link").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

func (t *RosterTable) linkLabel(p presence.Participant) string {
	if p.Self {
		return "-"
	}
	peer, ok := t.peers[p.ID]
	if !ok {
		return "pending"
	}
	if peer.HasStream() {
		return peer.State.String() + " " + IconStream
	}
	return peer.State.String()
}

func videoIcon(on bool) string {
	if on {
		return IconVideo
	}
	return IconVideoOff
}

func audioIcon(on bool) string {
	if on {
		return IconAudio
	}
	return IconMuted
}

type RoomInfo struct {
	RoomID   string
	RoomLink string
}

func NewRoomInfo(roomID, roomLink string) *RoomInfo {
	return &RoomInfo{
		RoomID:   roomID,
		RoomLink: roomLink,
	}
}

func (r *RoomInfo) View() string {
	boxStyle := lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(Success).
		Padding(1, 2)

	content := fmt.Sprintf("%s Room Ready!\n\n%s Room ID:    %s\n%s Room Link:  %s",
		IconSuccess,
		IconCopy, BoldStyle.Foreground(Primary).Render(r.RoomID),
		IconWeb, MutedStyle.Render(r.RoomLink),
	)

	return boxStyle.Render(content)
}

// RoomSummary is what the relay reports about a live room.
type RoomSummary struct {
	RoomID string
	Users  []string
}

// RoomSummaryView renders a plain-terminal report of a room's members.
func RoomSummaryView(summary RoomSummary) string {
	tw := prettytable.NewWriter()
	tw.SetTitle("%s Room %s", IconRoom, summary.RoomID)
	tw.AppendHeader(prettytable.Row{"#", "Member", "Identity"})
	for i, id := range summary.Users {
		tw.AppendRow(prettytable.Row{i + 1, presence.DisplayName(id), id})
	}
	tw.AppendFooter(prettytable.Row{"", "Total", len(summary.Users)})

	tw.SetStyle(prettytable.StyleRounded)
	tw.Style().Title.Align = text.AlignCenter
	tw.Style().Format.Header = text.FormatTitle
	tw.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	return tw.Render()
}

func RenderRoomSummary(summary RoomSummary) {
	fmt.Println(RoomSummaryView(summary))
}

// participantLine renders one roster entry for the side panel.
func participantLine(p presence.Participant, peer *mesh.Peer) string {
	var b strings.Builder
	b.WriteString(ParticipantStyle(p.Color).Render(utils.TruncateString(p.Name, 16)))
	if p.Self {
		b.WriteString(MutedStyle.Render(" (you)"))
	}
	b.WriteString(" " + videoIcon(p.VideoOn) + audioIcon(p.AudioOn))
	if peer != nil && peer.State != mesh.StateConnected {
		b.WriteString(MutedStyle.Render(" " + peer.State.String()))
	}
	return b.String()
}

// SessionSummary is printed after leaving a room.
type SessionSummary struct {
	RoomID       string
	Duration     time.Duration
	Messages     int
	Participants int
}

func SessionSummaryView(summary SessionSummary) string {
	tw := prettytable.NewWriter()
	tw.SetTitle("Session Summary")
	tw.AppendHeader(prettytable.Row{"Metric", "Value"})
	tw.AppendRows([]prettytable.Row{
		{"Room", summary.RoomID},
		{"Time in room", summary.Duration.Round(time.Second).String()},
		{"Messages", summary.Messages},
		{"Participants", summary.Participants},
	})

	tw.SetStyle(prettytable.StyleRounded)
	tw.Style().Format.Header = text.FormatTitle
	tw.Style().Color.Header = text.Colors{text.FgCyan, text.Bold}
	return tw.Render()
}

func RenderSessionSummary(summary SessionSummary) {
	fmt.Println(SessionSummaryView(summary))
}
