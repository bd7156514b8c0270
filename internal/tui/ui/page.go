package ui

import "github.com/rivo/tview"

// Hint is one key shown in the header menu.
type Hint struct {
	Key     string
	Action  string
	Numeric bool
}

// Page is a screen managed by Pages.
type Page interface {
	tview.Primitive
	// Title labels the page in the breadcrumb bar.
	Title() string
	Hints() []Hint
	// FocusTarget is the widget that takes input when the page comes to the top.
	FocusTarget() tview.Primitive
}
