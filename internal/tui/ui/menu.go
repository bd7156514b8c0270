package ui

import (
	"fmt"
	"strings"

	"github.com/rivo/tview"
)

// menuRows is how many hints fit in one column of the header.
const menuRows = 6

// Menu lists the keys of the top page in the header, column by column.
type Menu struct {
	*tview.TextView
	theme *Theme
}

func NewMenu(theme *Theme) *Menu {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(theme.BgColor)
	tv.SetBorderPadding(0, 0, 2, 0)
	return &Menu{TextView: tv, theme: theme}
}

func (m *Menu) Update(hints []Hint) {
	m.Clear()
	if len(hints) == 0 {
		return
	}
	cols := (len(hints) + menuRows - 1) / menuRows
	width := 0
	for _, h := range hints {
		width = max(width, len(h.Key)+len(h.Action)+3)
	}

	lines := make([]strings.Builder, min(len(hints), menuRows))
	for i, h := range hints {
		row, col := i%menuRows, i/menuRows
		color := m.theme.MenuKeyColor
		if h.Numeric {
			color = m.theme.NumericKeyColor
		}
		cell := fmt.Sprintf("[%s::b]<%s>[-:-:-] %s", colorName(color), h.Key, h.Action)
		lines[row].WriteString(cell)
		if col < cols-1 {
			lines[row].WriteString(strings.Repeat(" ", width-len(h.Key)-len(h.Action)-3+2))
		}
	}
	for i := range lines {
		_, _ = fmt.Fprintln(m, lines[i].String())
	}
}
