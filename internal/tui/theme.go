package tui

import "github.com/gdamore/tcell/v2"

// Theme holds color constants for the TUI.
type Theme struct {
	BgColor          tcell.Color
	FgColor          tcell.Color
	BorderColor      tcell.Color
	BorderFocusColor tcell.Color
	TitleColor       tcell.Color
	SelfColor        tcell.Color
	PeerColor        tcell.Color
	PendingColor     tcell.Color
	TypingColor      tcell.Color
	UnreadColor      tcell.Color
	FlashInfoColor   tcell.Color
	FlashErrColor    tcell.Color
}

// DefaultTheme returns the dark theme used across screens.
func DefaultTheme() *Theme {
	return &Theme{
		BgColor:          tcell.ColorBlack,
		FgColor:          tcell.ColorCadetBlue,
		BorderColor:      tcell.ColorDodgerBlue,
		BorderFocusColor: tcell.ColorLightSkyBlue,
		TitleColor:       tcell.ColorFuchsia,
		SelfColor:        tcell.ColorLightSkyBlue,
		PeerColor:        tcell.ColorNavajoWhite,
		PendingColor:     tcell.ColorGray,
		TypingColor:      tcell.ColorAqua,
		UnreadColor:      tcell.ColorOrange,
		FlashInfoColor:   tcell.ColorNavajoWhite,
		FlashErrColor:    tcell.ColorOrangeRed,
	}
}
