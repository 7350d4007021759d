package tui

import (
	"fmt"
	"time"

	"github.com/rivo/tview"

	"github.com/hosthub/hubchat/internal/status"
)

// StatusBar displays the profile, connection state and transient flashes.
type StatusBar struct {
	*tview.TextView
	theme   *Theme
	profile string
	state   status.State
	flash   *Flash
}

// NewStatusBar creates the bottom status bar.
func NewStatusBar(theme *Theme, flash *Flash) *StatusBar {
	tv := tview.NewTextView().SetDynamicColors(true)
	tv.SetBackgroundColor(tview.Styles.MoreContrastBackgroundColor)

	return &StatusBar{TextView: tv, theme: theme, state: status.Disconnected, flash: flash}
}

// SetProfile updates the profile name display.
func (sb *StatusBar) SetProfile(name string) {
	sb.profile = name
	sb.Render()
}

// SetState updates the connection state display.
func (sb *StatusBar) SetState(s status.State) {
	sb.state = s
	sb.Render()
}

// Render redraws the bar. Called on state changes and on the refresh tick so
// expired flashes disappear.
func (sb *StatusBar) Render() {
	sb.Clear()

	stateColor := "red"
	switch sb.state {
	case status.Connected:
		stateColor = "green"
	case status.Connecting:
		stateColor = "yellow"
	}

	clock := time.Now().Format("15:04")
	line := fmt.Sprintf(" [::b]%s[-:-:-] | [%s]%s[-] | %s", sb.profile, stateColor, sb.state, clock)

	if msg, isErr := sb.flash.Get(); msg != "" {
		color := "yellow"
		if isErr {
			color = "red"
		}
		line += fmt.Sprintf(" | [%s]%s[-]", color, tview.Escape(msg))
	}

	_, _ = fmt.Fprint(sb, line)
}
