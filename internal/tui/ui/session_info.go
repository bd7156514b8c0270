package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// SessionData is the daemon status shown in the header.
type SessionData struct {
	Session       string
	User          string
	Status        string
	Detail        string
	Active        string
	Conversations int
	InFlight      int
	Uptime        time.Duration
}

// SessionInfo is the header panel with the daemon's status.
type SessionInfo struct {
	*tview.TextView
	theme *Theme
}

func NewSessionInfo(theme *Theme) *SessionInfo {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 1, 1)
	return &SessionInfo{TextView: tv, theme: theme}
}

// statusColor maps the session state to a traffic light.
func (si *SessionInfo) statusColor(status string) tcell.Color {
	switch status {
	case "READY":
		return si.theme.LinkUpColor
	case "DEGRADED", "BOOTING", "BOOTSTRAPPING":
		return si.theme.LinkDownColor
	case "AUTH_REQUIRED", "ERROR":
		return si.theme.FailedColor
	}
	return si.theme.CounterColor
}

func (si *SessionInfo) Update(d *SessionData) {
	si.Clear()
	if d == nil {
		return
	}

	status := fmt.Sprintf("[%s::b]%s[-:-:-]", colorName(si.statusColor(d.Status)), d.Status)
	if d.Detail != "" {
		status += " [::d]" + tview.Escape(d.Detail) + "[-:-:-]"
	}
	convs := fmt.Sprint(d.Conversations)
	if d.InFlight > 0 {
		convs += fmt.Sprintf(" [::d](%d sending)[-:-:-]", d.InFlight)
	}

	label := colorName(si.theme.FgColor)
	value := colorName(si.theme.CounterColor)
	for _, row := range [][2]string{
		{"Session", tview.Escape(d.Session)},
		{"Officer", tview.Escape(orDash(d.User))},
		{"Status", status},
		{"Active", tview.Escape(orDash(d.Active))},
		{"Convs", convs},
		{"Uptime", formatUptime(d.Uptime)},
	} {
		_, _ = fmt.Fprintf(si, "[%s::b]%-8s[-:-:-] [%s]%s[-]\n", label, row[0]+":", value, row[1])
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatUptime(d time.Duration) string {
	d = d.Truncate(time.Minute)
	switch {
	case d >= 24*time.Hour:
		return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
	case d >= time.Hour:
		return fmt.Sprintf("%dh%02dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dm", int(d.Minutes()))
}
