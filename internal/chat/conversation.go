// Package chat owns the merged message timeline for one open conversation.
// It reconciles two independent sources of truth: the paginated REST history
// and the live socket stream. The merge is idempotent on message id, so a
// message arriving twice (REST refetch plus socket) lands exactly once.
package chat

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/dispatch"
	"github.com/hosthub/hubchat/internal/model"
	"github.com/hosthub/hubchat/internal/typing"
	"github.com/hosthub/hubchat/internal/wire"
)

// MessageAPI is the REST collaborator consumed by a conversation.
type MessageAPI interface {
	Messages(ctx context.Context, peerID string, limit int) ([]model.Message, error)
	CreateMessage(ctx context.Context, receiverID, content string) (*model.Message, error)
}

// Socket is the realtime collaborator consumed by a conversation.
type Socket interface {
	Emit(event string, payload any)
	On(event string, fn dispatch.Handler)
	Off(event string, fns ...dispatch.Handler)
}

// Conversation is the read model for one open chat: an ordered, de-duplicated
// message list plus the peer's typing flag. Mutations come from three places
// that may interleave freely: Load replacing the base list, socket events
// appending on top, and Send inserting optimistic entries. The last Load wins
// the base list; anything delivered after it is merged on top.
type Conversation struct {
	peerID string
	selfID string
	api    MessageAPI
	socket Socket
	logger *zap.Logger

	debounce *typing.Debouncer
	throttle *typing.Throttler

	mu       sync.Mutex
	msgs     []model.Message
	ids      map[string]struct{}
	gen      int
	closed   bool
	onUpdate func()

	msgHandler    dispatch.Handler
	typingHandler dispatch.Handler
}

// New creates a conversation with the given peer and wires its socket
// listeners. Call Close when the chat screen goes away, otherwise the
// listeners keep receiving events for a dead view.
func New(peerID, selfID string, api MessageAPI, socket Socket, logger *zap.Logger) *Conversation {
	c := &Conversation{
		peerID:   peerID,
		selfID:   selfID,
		api:      api,
		socket:   socket,
		logger:   logger,
		throttle: typing.NewThrottler(typing.DefaultEmitWindow),
		ids:      make(map[string]struct{}),
	}
	c.debounce = typing.NewDebouncer(typing.DefaultTTL, func(string, bool) { c.notify() })

	c.msgHandler = func(payload any) {
		msg, ok := payload.(*model.Message)
		if !ok || msg.SenderID != c.peerID {
			return
		}
		c.HandleIncoming(*msg)
	}
	c.typingHandler = func(payload any) {
		sig, ok := payload.(*wire.TypingSignal)
		if !ok || sig.UserID != c.peerID {
			return
		}
		c.debounce.Touch(c.peerID)
	}
	socket.On(wire.EventNewMessage, c.msgHandler)
	socket.On(wire.EventUserTyping, c.typingHandler)

	return c
}

// PeerID returns the peer this conversation is with.
func (c *Conversation) PeerID() string { return c.peerID }

// OnUpdate registers a callback fired after every change to the read model.
// It may be invoked from socket and timer goroutines.
func (c *Conversation) OnUpdate(fn func()) {
	c.mu.Lock()
	c.onUpdate = fn
	c.mu.Unlock()
}

// Load fetches the most recent history page and makes it the new base list.
// On failure the list is emptied (retryable empty state, never stale partial
// results) and an *api.FetchError is returned. A Load superseded by a newer
// one, or finishing after Close, is dropped.
func (c *Conversation) Load(ctx context.Context, limit int) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	fetched, err := c.api.Messages(ctx, c.peerID, limit)

	c.mu.Lock()
	if c.closed || gen != c.gen {
		c.mu.Unlock()
		c.logger.Debug("stale history load dropped", zap.String("peer_id", c.peerID))
		return nil
	}
	if err != nil {
		c.msgs = nil
		c.ids = make(map[string]struct{})
		c.mu.Unlock()
		c.notify()
		return err
	}

	// Optimistic entries are not server truth yet; carry them over.
	var pending []model.Message
	for _, m := range c.msgs {
		if m.Pending {
			pending = append(pending, m)
		}
	}

	c.msgs = nil
	c.ids = make(map[string]struct{})

	sort.SliceStable(fetched, func(i, j int) bool { return fetched[i].Before(fetched[j]) })
	for _, m := range fetched {
		c.insertLocked(m)
	}
	for _, m := range pending {
		c.insertLocked(m)
	}
	c.mu.Unlock()

	c.notify()
	return nil
}

// HandleIncoming merges one live message into the list. Redelivered ids are
// silently discarded; that is the guard that makes the socket-vs-refetch race
// harmless.
func (c *Conversation) HandleIncoming(msg model.Message) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if _, dup := c.ids[msg.ID]; dup {
		c.mu.Unlock()
		c.logger.Debug("duplicate message ignored", zap.String("msg_id", msg.ID))
		return
	}
	c.insertLocked(msg)
	c.mu.Unlock()

	c.notify()
}

// Send delivers content both ways: a fire-and-forget frame on the live
// channel and the durable REST create call. An optimistic entry with a client
// id shows immediately; it is replaced by the authoritative server copy when
// the REST call resolves, or removed when it fails. The socket emission alone
// is not proof of persistence, so failure returns an *api.SendError and the
// user must resend — no automatic retry.
func (c *Conversation) Send(ctx context.Context, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil
	}

	optimistic := model.Message{
		ID:         uuid.NewString(),
		SenderID:   c.selfID,
		ReceiverID: c.peerID,
		Content:    content,
		CreatedAt:  time.Now(),
		Pending:    true,
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, nil
	}
	c.insertLocked(optimistic)
	c.mu.Unlock()
	c.notify()

	c.socket.Emit(wire.EventMessage, wire.NewMessageOut(c.peerID, content))

	created, err := c.api.CreateMessage(ctx, c.peerID, content)

	c.mu.Lock()
	c.removeLocked(optimistic.ID)
	if err != nil {
		c.mu.Unlock()
		c.notify()
		c.logger.Warn("message persist failed", zap.String("peer_id", c.peerID), zap.Error(err))
		return nil, err
	}
	if c.closed {
		c.mu.Unlock()
		return created, nil
	}
	if _, dup := c.ids[created.ID]; !dup {
		c.insertLocked(*created)
	}
	c.mu.Unlock()
	c.notify()

	return created, nil
}

// InputChanged emits an outbound typing signal, throttled to at most one per
// second of continuous typing. Goes straight to the socket, never to REST.
func (c *Conversation) InputChanged() {
	if c.throttle.Allow() {
		c.socket.Emit(wire.EventTyping, wire.NewTypingOut(c.peerID))
	}
}

// MarkRead tells the backend the peer's messages have been seen.
func (c *Conversation) MarkRead() {
	c.socket.Emit(wire.EventRead, wire.NewReadOut(c.peerID))
}

// PeerTyping reports whether the peer's typing window is open.
func (c *Conversation) PeerTyping() bool {
	return c.debounce.Active(c.peerID)
}

// Messages returns a snapshot of the merged list, createdAt ascending.
func (c *Conversation) Messages() []model.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]model.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// Close detaches the socket listeners and cancels typing timers. In-flight
// REST calls are not cancelled; their responses are dropped by the closed
// guard when they eventually resolve.
func (c *Conversation) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.socket.Off(wire.EventNewMessage, c.msgHandler)
	c.socket.Off(wire.EventUserTyping, c.typingHandler)
	c.debounce.Stop()
}

// insertLocked places msg at its ordered position: after every message with
// an earlier or equal createdAt, so ties keep insertion order. Caller holds
// c.mu and has checked for duplicates.
func (c *Conversation) insertLocked(msg model.Message) {
	idx := sort.Search(len(c.msgs), func(i int) bool {
		return msg.Before(c.msgs[i])
	})
	c.msgs = append(c.msgs, model.Message{})
	copy(c.msgs[idx+1:], c.msgs[idx:])
	c.msgs[idx] = msg
	c.ids[msg.ID] = struct{}{}
}

func (c *Conversation) removeLocked(id string) {
	if _, ok := c.ids[id]; !ok {
		return
	}
	delete(c.ids, id)
	for i, m := range c.msgs {
		if m.ID == id {
			c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
			return
		}
	}
}

func (c *Conversation) notify() {
	c.mu.Lock()
	fn := c.onUpdate
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}
