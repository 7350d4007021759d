package tui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/hosthub/hubchat/internal/model"
)

// Thread displays the merged message list for the open conversation, the
// peer's typing indicator and the composer.
type Thread struct {
	*tview.Flex
	theme    *Theme
	messages *tview.TextView
	typing   *tview.TextView
	composer *tview.InputField
	peerName string
	onSend   func(text string)
	onInput  func()
}

// NewThread creates the conversation screen.
func NewThread(theme *Theme) *Thread {
	messages := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWordWrap(true)
	messages.SetBorder(true)
	messages.SetBorderColor(theme.BorderColor)
	messages.SetBackgroundColor(theme.BgColor)
	messages.SetTextColor(theme.FgColor)
	messages.SetTitleColor(theme.TitleColor)

	typing := tview.NewTextView().SetDynamicColors(true)
	typing.SetBackgroundColor(theme.BgColor)

	composer := tview.NewInputField().
		SetLabel(" > ").
		SetFieldWidth(0)
	composer.SetBorder(true)
	composer.SetBorderColor(theme.BorderColor)
	composer.SetBackgroundColor(theme.BgColor)
	composer.SetFieldBackgroundColor(theme.BgColor)
	composer.SetFieldTextColor(theme.FgColor)
	composer.SetTitle(" Compose (i to focus) ")
	composer.SetTitleColor(theme.TitleColor)

	flex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(messages, 0, 1, true).
		AddItem(typing, 1, 0, false).
		AddItem(composer, 3, 0, false)

	th := &Thread{
		Flex:     flex,
		theme:    theme,
		messages: messages,
		typing:   typing,
		composer: composer,
	}

	composer.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter && th.onSend != nil {
			text := composer.GetText()
			if text != "" {
				th.onSend(text)
				composer.SetText("")
			}
		}
	})
	composer.SetChangedFunc(func(text string) {
		if text != "" && th.onInput != nil {
			th.onInput()
		}
	})

	return th
}

// SetPeerName updates the screen title.
func (th *Thread) SetPeerName(name string) {
	th.peerName = name
	th.messages.SetTitle(fmt.Sprintf(" %s ", name))
}

// SetOnSend sets the callback for a submitted message.
func (th *Thread) SetOnSend(fn func(text string)) {
	th.onSend = fn
}

// SetOnInput sets the callback fired as the user types in the composer.
func (th *Thread) SetOnInput(fn func()) {
	th.onInput = fn
}

// SetTyping toggles the peer-is-typing line.
func (th *Thread) SetTyping(active bool) {
	th.typing.Clear()
	if active {
		_, _ = fmt.Fprintf(th.typing, " [aqua]%s is typing...[-]", tview.Escape(th.peerName))
	}
}

// Update redraws the message list. Pending entries, awaiting REST
// confirmation, render dimmed with a sending marker.
func (th *Thread) Update(msgs []model.Message, selfID string) {
	th.messages.Clear()

	for _, m := range msgs {
		sender := th.peerName
		color := "navajowhite"
		if m.SenderID == selfID {
			sender = "You"
			color = "lightskyblue"
		}

		ts := formatDay(m.CreatedAt.Local())
		marker := ""
		if m.Pending {
			color = "gray"
			marker = " [gray]~[-]"
		}

		_, _ = fmt.Fprintf(th.messages, "[%s::b]%s[-:-:-] [::d]%s[-:-:-]%s\n%s\n\n",
			color, tview.Escape(sanitizeForTerminal(sender)), ts, marker,
			tview.Escape(sanitizeForTerminal(m.Content)))
	}

	th.messages.ScrollToEnd()
}

// Composer returns the input field for focus management.
func (th *Thread) Composer() *tview.InputField {
	return th.composer
}

// Messages returns the message text view for focus management.
func (th *Thread) Messages() *tview.TextView {
	return th.messages
}

func formatDay(t time.Time) string {
	now := time.Now()
	if t.Year() == now.Year() && t.YearDay() == now.YearDay() {
		return t.Format("15:04")
	}
	return t.Format("01/02 15:04")
}
