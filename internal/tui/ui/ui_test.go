package ui

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

type stubPage struct {
	*tview.Box
	title string
}

func (s stubPage) Title() string                { return s.title }
func (s stubPage) Hints() []Hint                { return []Hint{{Key: "Esc", Action: "Back"}} }
func (s stubPage) FocusTarget() tview.Primitive { return s.Box }

func newTestPages() (*Pages, *[]string) {
	p := NewPages()
	for _, name := range []string{"conversations", "thread", "details"} {
		p.Register(name, stubPage{Box: tview.NewBox(), title: "T-" + name})
	}
	var crumbs []string
	p.SetOnChange(func(_ Page, trail []Page) { crumbs = Titles(trail) })
	return p, &crumbs
}

func TestPagesNavigation(t *testing.T) {
	p, crumbs := newTestPages()

	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")
	if want := []string{"T-conversations", "T-thread", "T-details"}; !slices.Equal(*crumbs, want) {
		t.Errorf("crumbs = %v, want %v", *crumbs, want)
	}
	if top := p.Pop(); top != "details" || p.Current() != "thread" || p.Depth() != 2 {
		t.Errorf("Pop() = %q, current %q depth %d", top, p.Current(), p.Depth())
	}
	if top, ok := p.Top(); !ok || top.Title() != "T-thread" {
		t.Errorf("Top() = %v, %v", top, ok)
	}
	if p.Pop() != "thread" || p.Pop() != "" || p.Current() != "conversations" {
		t.Errorf("root page must stay, stack %v", p.Stack())
	}
}

func TestPagesPushUnwinds(t *testing.T) {
	p, _ := newTestPages()
	p.Reset("conversations")
	p.Push("thread")
	p.Push("details")
	p.Push("thread")
	if want := []string{"conversations", "thread"}; !slices.Equal(p.Stack(), want) {
		t.Errorf("stack = %v, want %v", p.Stack(), want)
	}
	p.Push("nowhere")
	if p.Current() != "thread" {
		t.Errorf("unknown page changed the stack: %v", p.Stack())
	}
}

func newTestNotices(now *time.Time) *Notices {
	n := NewNotices()
	n.now = func() time.Time { return *now }
	return n
}

func TestNoticesSeverityAndExpiry(t *testing.T) {
	now := time.Unix(1000, 0)
	n := newTestNotices(&now)
	if _, ok := n.Visible(); ok {
		t.Fatal("fresh board shows nothing")
	}

	n.Error(errors.New("send failed"))
	n.Info("message resent")
	got, ok := n.Visible()
	if !ok || got.Text != "send failed" || got.Severity != SevError {
		t.Errorf("info replaced a visible error: %+v", got)
	}

	now = now.Add(severityTTL[SevError])
	if _, ok := n.Visible(); ok {
		t.Error("error should expire")
	}
	n.Info("message resent")
	if got, _ := n.Visible(); got.Text != "message resent" {
		t.Errorf("Visible() = %+v", got)
	}
}

func TestNoticesCollapseRepeats(t *testing.T) {
	now := time.Unix(1000, 0)
	n := newTestNotices(&now)
	n.Warn("no conversation matches %q", "x")
	n.Warn("no conversation matches %q", "x")
	got, _ := n.Visible()
	if got.Repeats != 1 {
		t.Errorf("Repeats = %d, want 1", got.Repeats)
	}
	if len(n.Changes()) != 2 {
		t.Errorf("changes queued = %d, want 2", len(n.Changes()))
	}
}

func TestNoticesStatusError(t *testing.T) {
	now := time.Unix(1000, 0)
	n := newTestNotices(&now)
	n.Error(grpcstatus.Error(codes.Unavailable, "not connected"))
	if got, _ := n.Visible(); got.Text != "not connected" {
		t.Errorf("Text = %q, want the status description", got.Text)
	}
}

func TestFormatUptime(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{45 * time.Second, "0m"},
		{7 * time.Minute, "7m"},
		{2*time.Hour + 5*time.Minute, "2h05m"},
		{50 * time.Hour, "2d2h"},
	}
	for _, tt := range tests {
		if got := formatUptime(tt.in); got != tt.want {
			t.Errorf("formatUptime(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPromptHistory(t *testing.T) {
	p := NewPrompt(DefaultTheme())
	var got []string
	p.SetOnSubmit(func(_ PromptMode, text string) { got = append(got, text) })
	enter := p.done

	for _, cmd := range []string{"open dm:3", "open dm:3", "search backup"} {
		p.Activate(PromptCommand)
		p.SetText(cmd)
		enter(tcell.KeyEnter)
	}
	if want := []string{"open dm:3", "search backup"}; !slices.Equal(p.History(), want) {
		t.Errorf("History() = %v, want %v", p.History(), want)
	}
	if len(got) != 3 {
		t.Errorf("submitted %d times, want 3", len(got))
	}

	p.Activate(PromptCommand)
	p.recall(-1)
	p.recall(-1)
	p.recall(-1)
	if p.GetText() != "open dm:3" {
		t.Errorf("Up past the oldest entry: %q", p.GetText())
	}
	p.recall(1)
	p.recall(1)
	if p.GetText() != "" {
		t.Errorf("Down past the newest entry should clear, got %q", p.GetText())
	}

	p.Activate(PromptFilter)
	p.SetText("disp")
	enter(tcell.KeyEnter)
	if len(p.History()) != 2 {
		t.Error("filters are not remembered")
	}
}
