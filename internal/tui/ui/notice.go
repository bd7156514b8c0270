package ui

import (
	"fmt"
	"sync"
	"time"

	"github.com/rivo/tview"
	grpcstatus "google.golang.org/grpc/status"
)

// Severity orders notices on the bottom bar.
type Severity int

const (
	SevInfo Severity = iota
	SevWarn
	SevError
)

var severityTTL = [...]time.Duration{
	SevInfo:  4 * time.Second,
	SevWarn:  8 * time.Second,
	SevError: 12 * time.Second,
}

// Notice is one line on the bottom bar. Repeats counts identical notices
// posted while the previous one was still visible.
type Notice struct {
	Text     string
	Severity Severity
	Repeats  int
	Until    time.Time
}

func (n Notice) expired(now time.Time) bool { return !now.Before(n.Until) }

// Notices keeps the visible notice and feeds changes to the UI goroutine.
// A lower severity never replaces a visible higher one.
type Notices struct {
	mu      sync.Mutex
	now     func() time.Time
	current Notice
	changes chan Notice
}

func NewNotices() *Notices {
	return &Notices{now: time.Now, changes: make(chan Notice, 8)}
}

func (n *Notices) Info(format string, args ...any) {
	n.Post(SevInfo, fmt.Sprintf(format, args...))
}

func (n *Notices) Warn(format string, args ...any) {
	n.Post(SevWarn, fmt.Sprintf(format, args...))
}

// Error posts err, showing only the description of a daemon status error.
func (n *Notices) Error(err error) {
	if s, ok := grpcstatus.FromError(err); ok {
		n.Post(SevError, s.Message())
		return
	}
	n.Post(SevError, err.Error())
}

// Post shows text for the severity's default lifetime.
func (n *Notices) Post(sev Severity, text string) {
	n.mu.Lock()
	now := n.now()
	cur := n.current
	if !cur.expired(now) {
		if cur.Text == text && cur.Severity == sev {
			n.current.Repeats++
			n.current.Until = now.Add(severityTTL[sev])
			n.publishLocked()
			n.mu.Unlock()
			return
		}
		if cur.Severity > sev {
			n.mu.Unlock()
			return
		}
	}
	n.current = Notice{Text: text, Severity: sev, Until: now.Add(severityTTL[sev])}
	n.publishLocked()
	n.mu.Unlock()
}

func (n *Notices) publishLocked() {
	select {
	case n.changes <- n.current:
	default:
	}
}

// Visible returns the current notice and whether it is still shown.
func (n *Notices) Visible() (Notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.current.expired(n.now()) {
		return Notice{}, false
	}
	return n.current, true
}

func (n *Notices) Changes() <-chan Notice { return n.changes }

// NoticeBar renders notices below the page stack.
type NoticeBar struct {
	*tview.TextView
	theme *Theme
}

func NewNoticeBar(theme *Theme) *NoticeBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	return &NoticeBar{TextView: tv, theme: theme}
}

// Show draws n, or clears the bar when ok is false.
func (b *NoticeBar) Show(n Notice, ok bool) {
	b.Clear()
	if !ok {
		return
	}
	color := b.theme.NoticeInfoColor
	switch n.Severity {
	case SevWarn:
		color = b.theme.NoticeWarnColor
	case SevError:
		color = b.theme.NoticeErrorColor
	}
	text := tview.Escape(n.Text)
	if n.Repeats > 0 {
		text = fmt.Sprintf("%s (x%d)", text, n.Repeats+1)
	}
	_, _ = fmt.Fprintf(b, " [%s]%s[-]", colorName(color), text)
}
