package ui

import (
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/rudransh-shrivastava/peerdrop/internal/store"
)

// HistoryView renders transfers in the order given.
func HistoryView(transfers []store.Transfer) string {
	if len(transfers) == 0 {
		return MutedStyle.Render("No transfers yet")
	}

	headers := []string{"When", "", "Name", "Size", "Type", "Peers"}

	rows := make([][]string, 0, len(transfers))
	for _, t := range transfers {
		icon := IconSend
		if t.Direction == store.Received {
			icon = IconReceive
		}
		rows = append(rows, []string{
			time.Unix(t.CreatedAt, 0).Format(time.DateTime),
			icon,
			TruncateString(t.FileName, 40),
			FormatSize(t.Size),
			TruncateString(t.MIMEType, 24),
			strconv.Itoa(t.PeerCount),
		})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Primary)).
		Headers(headers...).
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

func RenderHistory(transfers []store.Transfer) {
	fmt.Fprintln(Out, HistoryView(transfers))
}
