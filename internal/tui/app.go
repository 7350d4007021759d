// Package tui is the terminal front end: a peer list, one open conversation
// screen and a status bar reflecting the socket connection state.
package tui

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/api"
	"github.com/hosthub/hubchat/internal/chat"
	"github.com/hosthub/hubchat/internal/dispatch"
	"github.com/hosthub/hubchat/internal/model"
	"github.com/hosthub/hubchat/internal/status"
	"github.com/hosthub/hubchat/internal/transport"
	"github.com/hosthub/hubchat/internal/wire"
)

const (
	flashTTL    = 5 * time.Second
	historyPage = 50
	refreshTick = time.Second
)

// App is the main TUI application shell. It owns at most one open
// chat.Conversation at a time; switching peers closes the previous one so its
// socket listeners detach.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	theme     *Theme
	flash     *Flash
	statusBar *StatusBar
	peerList  *PeerList
	thread    *Thread

	api     *api.Client
	manager *transport.Manager
	selfID  string
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	onExit func()

	mu     sync.Mutex
	conv   *chat.Conversation
	peers  []model.Peer
	unread map[string]int

	inboundHandler dispatch.Handler
	noticeHandler  dispatch.Handler
}

// NewApp creates the TUI application.
func NewApp(c *api.Client, m *transport.Manager, selfID, profile string, logger *zap.Logger) *App {
	ctx, cancel := context.WithCancel(context.Background())
	theme := DefaultTheme()
	flash := &Flash{}

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		theme:     theme,
		flash:     flash,
		statusBar: NewStatusBar(theme, flash),
		peerList:  NewPeerList(theme),
		thread:    NewThread(theme),
		api:       c,
		manager:   m,
		selfID:    selfID,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		unread:    make(map[string]int),
	}

	a.statusBar.SetProfile(profile)
	a.setupCallbacks()
	a.setupLayout()

	return a
}

// SetOnExit registers a callback invoked once when the UI terminates.
func (a *App) SetOnExit(fn func()) {
	a.onExit = fn
}

func (a *App) setupCallbacks() {
	a.peerList.SetSelectedFunc(func(row, col int) {
		if peer := a.peerList.SelectedPeer(); peer != nil {
			a.openChat(*peer)
		}
	})

	a.thread.SetOnSend(func(text string) {
		conv := a.activeConv()
		if conv == nil {
			return
		}
		go func() {
			if _, err := conv.Send(a.ctx, text); err != nil {
				a.flash.SetError("Send failed, message not delivered", flashTTL)
				a.logger.Warn("send failed", zap.Error(err))
			}
		}()
	})

	a.thread.SetOnInput(func() {
		if conv := a.activeConv(); conv != nil {
			conv.InputChanged()
		}
	})

	a.manager.OnStateChange(func(c status.Change) {
		a.app.QueueUpdateDraw(func() {
			a.statusBar.SetState(c.To)
		})
	})

	// Messages for peers other than the open one bump their unread counter.
	a.inboundHandler = func(payload any) {
		msg, ok := payload.(*model.Message)
		if !ok || msg.SenderID == a.selfID {
			return
		}
		a.mu.Lock()
		openPeer := ""
		if a.conv != nil {
			openPeer = a.conv.PeerID()
		}
		if msg.SenderID != openPeer {
			a.unread[msg.SenderID]++
		}
		peers, unread := a.peers, a.unreadCopyLocked()
		a.mu.Unlock()

		a.app.QueueUpdateDraw(func() {
			a.peerList.Update(peers, unread)
		})
	}
	a.manager.On(wire.EventNewMessage, a.inboundHandler)

	a.noticeHandler = func(payload any) {
		notice, ok := payload.(*wire.ServerNotice)
		if !ok {
			return
		}
		if notice.Level == "error" {
			a.flash.SetError(notice.Text, flashTTL)
		} else {
			a.flash.Set(notice.Text, flashTTL)
		}
		a.app.QueueUpdateDraw(a.statusBar.Render)
	}
	a.manager.On(wire.EventServerMessage, a.noticeHandler)
}

func (a *App) setupLayout() {
	a.pages.AddPage("peers", a.peerList, true, true)
	a.pages.AddPage("chat", a.thread, true, false)

	root := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)

	a.app.SetRoot(root, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape && currentPage == "chat" {
			a.closeChat()
			a.pages.SwitchToPage("peers")
			a.app.SetFocus(a.peerList)
			return nil
		}

		// Let text input widgets handle all keys normally.
		if _, ok := a.app.GetFocus().(*tview.InputField); ok {
			return event
		}

		if event.Key() == tcell.KeyRune {
			switch {
			case event.Rune() == 'q':
				a.app.Stop()
				return nil
			case event.Rune() == 'i' && currentPage == "chat":
				a.app.SetFocus(a.thread.Composer())
				return nil
			case event.Rune() == 'r' && currentPage == "peers":
				go a.loadPeers()
				return nil
			}
		}

		return event
	})
}

func (a *App) activeConv() *chat.Conversation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.conv
}

func (a *App) unreadCopyLocked() map[string]int {
	out := make(map[string]int, len(a.unread))
	for k, v := range a.unread {
		out[k] = v
	}
	return out
}

func (a *App) openChat(peer model.Peer) {
	a.mu.Lock()
	if a.conv != nil {
		a.conv.Close()
	}
	conv := chat.New(peer.ID, a.selfID, a.api, a.manager, a.logger)
	a.conv = conv
	delete(a.unread, peer.ID)
	a.mu.Unlock()

	conv.OnUpdate(func() {
		a.app.QueueUpdateDraw(func() {
			a.thread.Update(conv.Messages(), a.selfID)
			a.thread.SetTyping(conv.PeerTyping())
		})
	})

	name := peer.Username
	if name == "" {
		name = peer.ID
	}
	a.thread.SetPeerName(name)
	a.thread.Update(nil, a.selfID)
	a.thread.SetTyping(false)
	a.pages.SwitchToPage("chat")
	a.app.SetFocus(a.thread.Composer())

	go func() {
		if err := conv.Load(a.ctx, historyPage); err != nil {
			a.flash.SetError("Could not load history", flashTTL)
			a.logger.Warn("history load failed", zap.String("peer_id", peer.ID), zap.Error(err))
			a.app.QueueUpdateDraw(a.statusBar.Render)
			return
		}
		conv.MarkRead()
	}()
}

func (a *App) closeChat() {
	a.mu.Lock()
	conv := a.conv
	a.conv = nil
	a.mu.Unlock()
	if conv != nil {
		conv.Close()
	}
}

func (a *App) loadPeers() {
	peers, err := a.api.Conversations(a.ctx)
	if err != nil {
		a.flash.SetError("Could not load conversations", flashTTL)
		a.logger.Warn("conversation list load failed", zap.Error(err))
		a.app.QueueUpdateDraw(a.statusBar.Render)
		return
	}

	a.mu.Lock()
	a.peers = peers
	unread := a.unreadCopyLocked()
	a.mu.Unlock()

	a.app.QueueUpdateDraw(func() {
		a.peerList.Update(peers, unread)
	})
}

// Run starts the TUI and blocks until the user quits.
func (a *App) Run() error {
	go a.loadPeers()
	a.startRefreshLoop()

	err := a.app.Run()
	a.cancel()
	a.closeChat()
	if a.onExit != nil {
		a.onExit()
	}
	return err
}

// startRefreshLoop redraws time-dependent chrome: the clock, flash expiry and
// the typing indicator when a peer's window lapses without a new event.
func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(refreshTick)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				a.app.QueueUpdateDraw(func() {
					a.statusBar.Render()
					if conv := a.activeConv(); conv != nil {
						a.thread.SetTyping(conv.PeerTyping())
					}
				})
			case <-a.ctx.Done():
				return
			}
		}
	}()
}

// Stop shuts the TUI down.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
