package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/LittleBoy9/peerbeam/internal/signaling"
)

// RoomsTableView renders the relay's room listing.
func RoomsTableView(rooms []signaling.RoomSummary) string {
	if len(rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	tbl := table.NewWriter()
	tbl.AppendHeader(table.Row{"Room", "Peers", "Members"})

	for _, room := range rooms {
		names := make([]string, len(room.Peers))
		for i, p := range room.Peers {
			names[i] = p.Name
		}
		members := truncateString(strings.Join(names, ", "), 50)
		tbl.AppendRow(table.Row{room.ID, room.PeerCount, members})
	}

	tbl.SetStyle(table.StyleRounded)
	tbl.Style().Color.Header = text.Colors{text.FgHiCyan, text.Bold}

	return tbl.Render()
}

// RenderRoomsTable outputs the room listing directly to stdout
func RenderRoomsTable(rooms []signaling.RoomSummary) {
	fmt.Println(RoomsTableView(rooms))
}

// TokenView renders one side of the offline exchange as a copy-paste box.
func TokenView(title, token string) string {
	content := fmt.Sprintf("%s %s\n\n%s",
		IconCopy, BoldStyle.Foreground(Primary).Render(title),
		lipgloss.NewStyle().Width(68).Render(token),
	)
	return BoxStyle.Render(content)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
