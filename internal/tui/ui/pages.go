package ui

import (
	"slices"

	"github.com/rivo/tview"
)

// Pages is a navigation stack over named pages. The root page is never
// popped, and pushing a page already on the stack unwinds back to it.
type Pages struct {
	*tview.Pages
	byName   map[string]Page
	stack    []string
	onChange func(top Page, trail []Page)
}

func NewPages() *Pages {
	return &Pages{Pages: tview.NewPages(), byName: make(map[string]Page)}
}

// Register adds a hidden page.
func (p *Pages) Register(name string, page Page) {
	p.byName[name] = page
	p.AddPage(name, page, true, false)
}

// SetOnChange is called after every navigation with the top page and the
// whole trail, root first.
func (p *Pages) SetOnChange(fn func(top Page, trail []Page)) {
	p.onChange = fn
}

// Push shows name on top. An unknown name is ignored.
func (p *Pages) Push(name string) {
	if _, ok := p.byName[name]; !ok {
		return
	}
	if i := slices.Index(p.stack, name); i >= 0 {
		p.unwind(i + 1)
		return
	}
	if top := p.Current(); top != "" {
		p.HidePage(top)
	}
	p.stack = append(p.stack, name)
	p.show(name)
}

// Pop removes the top page unless it is the root, returning its name.
func (p *Pages) Pop() string {
	if len(p.stack) <= 1 {
		return ""
	}
	top := p.Current()
	p.unwind(len(p.stack) - 1)
	return top
}

// Reset makes name the only page on the stack.
func (p *Pages) Reset(name string) {
	if _, ok := p.byName[name]; !ok {
		return
	}
	for _, n := range p.stack {
		p.HidePage(n)
	}
	p.stack = append(p.stack[:0], name)
	p.show(name)
}

func (p *Pages) unwind(depth int) {
	for _, n := range p.stack[depth:] {
		p.HidePage(n)
	}
	p.stack = p.stack[:depth]
	p.show(p.Current())
}

func (p *Pages) show(name string) {
	p.ShowPage(name)
	p.SendToFront(name)
	p.Refresh()
}

// Refresh re-announces the current trail, for titles that changed in place.
func (p *Pages) Refresh() {
	if p.onChange != nil && len(p.stack) > 0 {
		name := p.Current()
		trail := make([]Page, 0, len(p.stack))
		for _, n := range p.stack {
			trail = append(trail, p.byName[n])
		}
		p.onChange(p.byName[name], trail)
	}
}

// Current returns the top page name, empty before the first Reset.
func (p *Pages) Current() string {
	if len(p.stack) == 0 {
		return ""
	}
	return p.stack[len(p.stack)-1]
}

// Top returns the top page.
func (p *Pages) Top() (Page, bool) {
	page, ok := p.byName[p.Current()]
	return page, ok
}

func (p *Pages) Depth() int { return len(p.stack) }

func (p *Pages) Stack() []string { return slices.Clone(p.stack) }
