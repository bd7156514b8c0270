package ui

import "github.com/gdamore/tcell/v2"

// Theme is the TUI palette.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	CounterColor     tcell.Color

	TableHeaderFg tcell.Color
	TableHeaderBg tcell.Color
	TableCursorFg tcell.Color
	TableCursorBg tcell.Color

	CrumbActiveFg   tcell.Color
	CrumbActiveBg   tcell.Color
	CrumbInactiveFg tcell.Color
	CrumbInactiveBg tcell.Color

	MenuKeyColor      tcell.Color
	NumericKeyColor   tcell.Color
	PromptBorderColor tcell.Color

	NoticeInfoColor  tcell.Color
	NoticeWarnColor  tcell.Color
	NoticeErrorColor tcell.Color

	// Thread colors: own messages, peer messages, and the delivery and
	// connection marks.
	OutgoingColor tcell.Color
	IncomingColor tcell.Color
	PendingColor  tcell.Color
	FailedColor   tcell.Color
	LinkUpColor   tcell.Color
	LinkDownColor tcell.Color
}

// DefaultTheme is navy with gold accents.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorLightSteelBlue,
		BorderColor:      tcell.ColorRoyalBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorGold,
		CounterColor:     tcell.ColorPapayaWhip,

		TableHeaderFg: tcell.ColorWhite,
		TableHeaderBg: tcell.ColorBlack,
		TableCursorFg: tcell.ColorBlack,
		TableCursorBg: tcell.ColorLightSkyBlue,

		CrumbActiveFg:   tcell.ColorBlack,
		CrumbActiveBg:   tcell.ColorGold,
		CrumbInactiveFg: tcell.ColorBlack,
		CrumbInactiveBg: tcell.ColorSteelBlue,

		MenuKeyColor:      tcell.ColorCornflowerBlue,
		NumericKeyColor:   tcell.ColorGold,
		PromptBorderColor: tcell.ColorCornflowerBlue,

		NoticeInfoColor:  tcell.ColorNavajoWhite,
		NoticeWarnColor:  tcell.ColorOrange,
		NoticeErrorColor: tcell.ColorOrangeRed,

		OutgoingColor: tcell.ColorGold,
		IncomingColor: tcell.ColorLightSkyBlue,
		PendingColor:  tcell.ColorGray,
		FailedColor:   tcell.ColorOrangeRed,
		LinkUpColor:   tcell.ColorMediumSeaGreen,
		LinkDownColor: tcell.ColorOrange,
	}
}
