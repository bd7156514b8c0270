package views

import (
	"strings"
	"time"

	"github.com/matheus3301/precinct/internal/rpc"
)

func formatTimestamp(ms int64) string {
	if ms == 0 {
		return ""
	}
	t := time.UnixMilli(ms)
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02")
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func displayName(c rpc.Conversation) string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}

func preview(c rpc.Conversation) string {
	if c.LastMessage == nil {
		return ""
	}
	return c.LastMessage.Body
}

func lastActivity(c rpc.Conversation) int64 {
	if c.LastMessage == nil {
		return 0
	}
	return c.LastMessage.TimestampUnixMs
}

func kind(c rpc.Conversation) string {
	if strings.HasPrefix(c.ID, "room:") {
		return "ROOM"
	}
	return "DM"
}
