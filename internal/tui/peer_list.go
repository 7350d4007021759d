package tui

import (
	"fmt"

	"github.com/rivo/tview"

	"github.com/hosthub/hubchat/internal/model"
)

// PeerList is the conversation list table.
type PeerList struct {
	*tview.Table
	theme *Theme
	peers []model.Peer
}

// NewPeerList creates the conversation list.
func NewPeerList(theme *Theme) *PeerList {
	table := tview.NewTable().
		SetSelectable(true, false).
		SetBorders(false)
	table.SetBorder(true).SetTitle(" Conversations ")
	table.SetBorderColor(theme.BorderColor)
	table.SetBackgroundColor(theme.BgColor)
	table.SetTitleColor(theme.TitleColor)

	return &PeerList{Table: table, theme: theme}
}

// Update refreshes the list. unread maps peer id to unseen message count.
func (pl *PeerList) Update(peers []model.Peer, unread map[string]int) {
	row, _ := pl.GetSelection()
	pl.peers = peers
	pl.Clear()

	pl.SetCell(0, 0, tview.NewTableCell(" Peer").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))
	pl.SetCell(0, 1, tview.NewTableCell(" Unread").SetSelectable(false).SetTextColor(tview.Styles.SecondaryTextColor))

	for i, peer := range peers {
		name := peer.Username
		if name == "" {
			name = peer.ID
		}
		badge := ""
		if n := unread[peer.ID]; n > 0 {
			badge = fmt.Sprintf("[orange]%d[-]", n)
		}
		pl.SetCell(i+1, 0, tview.NewTableCell(" "+tview.Escape(sanitizeForTerminal(name))).SetMaxWidth(30).SetExpansion(1))
		pl.SetCell(i+1, 1, tview.NewTableCell(" "+badge).SetMaxWidth(8))
	}

	if row > 0 && row <= len(peers) {
		pl.Select(row, 0)
	} else if len(peers) > 0 {
		pl.Select(1, 0)
	}
}

// SelectedPeer returns the currently highlighted peer, or nil.
func (pl *PeerList) SelectedPeer() *model.Peer {
	row, _ := pl.GetSelection()
	idx := row - 1 // header row
	if idx >= 0 && idx < len(pl.peers) {
		p := pl.peers[idx]
		return &p
	}
	return nil
}
