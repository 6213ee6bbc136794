package ui

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rudransh-shrivastava/peerdrop/internal/session"
	"github.com/rudransh-shrivastava/peerdrop/internal/store"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.00 KB"},
		{5 * 1024 * 1024, "5.00 MB"},
		{3 * 1024 * 1024 * 1024, "3.00 GB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatSize(tt.in))
	}
}

func TestTruncateString(t *testing.T) {
	assert.Equal(t, "short", TruncateString("short", 10))
	assert.Equal(t, "abcdefg...", TruncateString("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", TruncateString("abcdef", 2))
}

func TestPrinter_Notify(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Notify(session.Notification{Kind: session.KindInfo, Message: "File sent!"})
	p.Notify(session.Notification{Kind: session.KindError, Code: session.CodeRoomFull, Message: "Room is full!"})

	out := buf.String()
	assert.Contains(t, out, "File sent!")
	assert.Contains(t, out, "Room is full!")
	assert.Contains(t, out, IconError)
}

func TestPrinter_StateChangedOnlyOnCountChange(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.StateChanged(session.State{LocalID: "1234"})
	assert.Empty(t, buf.String())

	p.StateChanged(session.State{LocalID: "1234", ConnectionCount: 1})
	p.StateChanged(session.State{LocalID: "1234", ConnectionCount: 1})
	assert.Equal(t, 1, strings.Count(buf.String(), "Peers connected: 1"))
}

func TestHistoryView(t *testing.T) {
	assert.Contains(t, HistoryView(nil), "No transfers yet")

	view := HistoryView([]store.Transfer{
		{Direction: store.Received, FileName: "report.pdf", Size: 5, MIMEType: "application/pdf", CreatedAt: 100},
		{Direction: store.Sent, FileName: "notes.txt", Size: 2048, PeerCount: 2, CreatedAt: 50},
	})
	assert.Contains(t, view, "report.pdf")
	assert.Contains(t, view, "notes.txt")
	assert.Contains(t, view, "2.00 KB")
	assert.Less(t, strings.Index(view, "report.pdf"), strings.Index(view, "notes.txt"))
}
