package chat

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hosthub/hubchat/internal/api"
	"github.com/hosthub/hubchat/internal/dispatch"
	"github.com/hosthub/hubchat/internal/model"
	"github.com/hosthub/hubchat/internal/wire"
)

type fakeAPI struct {
	messagesFn func(ctx context.Context, peerID string, limit int) ([]model.Message, error)
	createFn   func(ctx context.Context, receiverID, content string) (*model.Message, error)
}

func (f *fakeAPI) Messages(ctx context.Context, peerID string, limit int) ([]model.Message, error) {
	if f.messagesFn == nil {
		return nil, nil
	}
	return f.messagesFn(ctx, peerID, limit)
}

func (f *fakeAPI) CreateMessage(ctx context.Context, receiverID, content string) (*model.Message, error) {
	if f.createFn == nil {
		return nil, &api.SendError{Err: errors.New("not configured")}
	}
	return f.createFn(ctx, receiverID, content)
}

type emitted struct {
	event   string
	payload any
}

type fakeSocket struct {
	disp *dispatch.Dispatcher

	mu     sync.Mutex
	frames []emitted
}

func newFakeSocket() *fakeSocket {
	return &fakeSocket{disp: dispatch.New()}
}

func (s *fakeSocket) Emit(event string, payload any) {
	s.mu.Lock()
	s.frames = append(s.frames, emitted{event, payload})
	s.mu.Unlock()
}

func (s *fakeSocket) On(event string, fn dispatch.Handler)      { s.disp.On(event, fn) }
func (s *fakeSocket) Off(event string, fns ...dispatch.Handler) { s.disp.Off(event, fns...) }

func (s *fakeSocket) emittedEvents(event string) []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []emitted
	for _, f := range s.frames {
		if f.event == event {
			out = append(out, f)
		}
	}
	return out
}

func at(minute int) time.Time {
	return time.Date(2026, 8, 28, 10, minute, 0, 0, time.UTC)
}

func msg(id, sender string, created time.Time) model.Message {
	return model.Message{ID: id, SenderID: sender, ReceiverID: "u1", Content: "msg " + id, CreatedAt: created}
}

func newConv(t *testing.T, a MessageAPI) (*Conversation, *fakeSocket) {
	t.Helper()
	s := newFakeSocket()
	c := New("u2", "u1", a, s, zap.NewNop())
	t.Cleanup(c.Close)
	return c, s
}

func ids(msgs []model.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

func equalIDs(a []string, b ...string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestHandleIncomingDeduplicates(t *testing.T) {
	c, _ := newConv(t, &fakeAPI{})

	m := msg("m1", "u2", at(0))
	c.HandleIncoming(m)
	c.HandleIncoming(m)
	c.HandleIncoming(msg("m2", "u2", at(1)))
	c.HandleIncoming(m)

	got := ids(c.Messages())
	if !equalIDs(got, "m1", "m2") {
		t.Errorf("list = %v, want each id exactly once in order", got)
	}
}

func TestLiveEventMergesIntoLoadedHistory(t *testing.T) {
	a := &fakeAPI{
		messagesFn: func(context.Context, string, int) ([]model.Message, error) {
			return []model.Message{msg("m1", "u2", at(0)), msg("m3", "u2", at(2))}, nil
		},
	}
	c, _ := newConv(t, a)

	if err := c.Load(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	// Live event with a timestamp between the loaded ones.
	c.HandleIncoming(msg("m2", "u2", at(1)))

	got := ids(c.Messages())
	if !equalIDs(got, "m1", "m2", "m3") {
		t.Errorf("list = %v, want [m1 m2 m3] (createdAt ascending)", got)
	}
}

func TestLiveEventBeforeLoadStaysMerged(t *testing.T) {
	a := &fakeAPI{
		messagesFn: func(context.Context, string, int) ([]model.Message, error) {
			return []model.Message{msg("m1", "u2", at(0)), msg("m2", "u2", at(1))}, nil
		},
	}
	c, _ := newConv(t, a)

	// Socket beats the history fetch; the refetch then includes the same id.
	c.HandleIncoming(msg("m2", "u2", at(1)))
	if err := c.Load(context.Background(), 20); err != nil {
		t.Fatal(err)
	}

	got := ids(c.Messages())
	if !equalIDs(got, "m1", "m2") {
		t.Errorf("list = %v, want [m1 m2] with m2 exactly once", got)
	}
}

func TestTimestampTiesKeepInsertionOrder(t *testing.T) {
	c, _ := newConv(t, &fakeAPI{})

	c.HandleIncoming(msg("first", "u2", at(0)))
	c.HandleIncoming(msg("second", "u2", at(0)))
	c.HandleIncoming(msg("third", "u2", at(0)))

	got := ids(c.Messages())
	if !equalIDs(got, "first", "second", "third") {
		t.Errorf("list = %v, ties must keep insertion order", got)
	}
}

func TestLoadFailureClearsList(t *testing.T) {
	fail := false
	a := &fakeAPI{
		messagesFn: func(context.Context, string, int) ([]model.Message, error) {
			if fail {
				return nil, &api.FetchError{StatusCode: 500}
			}
			return []model.Message{msg("m1", "u2", at(0))}, nil
		},
	}
	c, _ := newConv(t, a)

	if err := c.Load(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	if len(c.Messages()) != 1 {
		t.Fatal("seed load failed")
	}

	fail = true
	err := c.Load(context.Background(), 20)

	var fe *api.FetchError
	if !errors.As(err, &fe) {
		t.Errorf("err = %v, want *api.FetchError", err)
	}
	if n := len(c.Messages()); n != 0 {
		t.Errorf("list has %d messages after failed load, want 0 (no stale data)", n)
	}
}

func TestStaleLoadIsDropped(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	var calls atomic.Int32
	a := &fakeAPI{
		messagesFn: func(context.Context, string, int) ([]model.Message, error) {
			if calls.Add(1) == 1 {
				started <- struct{}{}
				<-release
				return []model.Message{msg("old", "u2", at(0))}, nil
			}
			return []model.Message{msg("new", "u2", at(1))}, nil
		},
	}
	c, _ := newConv(t, a)

	firstDone := make(chan error, 1)
	go func() { firstDone <- c.Load(context.Background(), 20) }()

	// Wait for the first load to be in flight.
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for first load to start")
	}

	if err := c.Load(context.Background(), 20); err != nil {
		t.Fatal(err)
	}
	close(release)
	if err := <-firstDone; err != nil {
		t.Fatal(err)
	}

	got := ids(c.Messages())
	if !equalIDs(got, "new") {
		t.Errorf("list = %v, want [new] (superseded load must not win)", got)
	}
}

func TestSendReplacesOptimisticEntry(t *testing.T) {
	a := &fakeAPI{
		createFn: func(_ context.Context, receiverID, content string) (*model.Message, error) {
			return &model.Message{
				ID: "srv-1", SenderID: "u1", ReceiverID: receiverID,
				Content: content, CreatedAt: at(5),
			}, nil
		},
	}
	c, s := newConv(t, a)

	created, err := c.Send(context.Background(), "hi")
	if err != nil {
		t.Fatal(err)
	}
	if created.ID != "srv-1" {
		t.Errorf("created.ID = %q", created.ID)
	}

	msgs := c.Messages()
	if len(msgs) != 1 || msgs[0].ID != "srv-1" || msgs[0].Pending {
		t.Errorf("list = %+v, want exactly the confirmed server copy", msgs)
	}

	// The live channel got the frame too.
	frames := s.emittedEvents(wire.EventMessage)
	if len(frames) != 1 {
		t.Fatalf("emitted %d message frames, want 1", len(frames))
	}
	out, ok := frames[0].payload.(wire.MessageOut)
	if !ok || out.ReceiverID != "u2" || out.Content != "hi" {
		t.Errorf("frame payload = %#v", frames[0].payload)
	}
}

func TestSendFailureLeavesNoEntry(t *testing.T) {
	a := &fakeAPI{
		createFn: func(context.Context, string, string) (*model.Message, error) {
			return nil, &api.SendError{StatusCode: 500}
		},
	}
	c, _ := newConv(t, a)

	_, err := c.Send(context.Background(), "hi")

	var se *api.SendError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *api.SendError", err)
	}
	for _, m := range c.Messages() {
		if m.Content == "hi" {
			t.Errorf("failed send left entry %+v in the list", m)
		}
	}
}

func TestSendShowsOptimisticEntryWhileInFlight(t *testing.T) {
	release := make(chan struct{})
	a := &fakeAPI{
		createFn: func(_ context.Context, receiverID, content string) (*model.Message, error) {
			<-release
			return &model.Message{ID: "srv-1", SenderID: "u1", ReceiverID: receiverID, Content: content, CreatedAt: at(5)}, nil
		},
	}
	c, _ := newConv(t, a)

	done := make(chan struct{})
	go func() {
		_, _ = c.Send(context.Background(), "hi")
		close(done)
	}()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		msgs := c.Messages()
		if len(msgs) == 1 && msgs[0].Pending {
			break
		}
		time.Sleep(time.Millisecond)
	}
	msgs := c.Messages()
	if len(msgs) != 1 || !msgs[0].Pending {
		t.Errorf("in-flight send not visible as pending entry: %+v", msgs)
	}

	close(release)
	<-done
	msgs = c.Messages()
	if len(msgs) != 1 || msgs[0].ID != "srv-1" {
		t.Errorf("final list = %+v", msgs)
	}
}

func TestSendEmptyContentIsNoop(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	created, err := c.Send(context.Background(), "   ")
	if created != nil || err != nil {
		t.Errorf("Send(blank) = %v, %v, want nil, nil", created, err)
	}
	if len(s.emittedEvents(wire.EventMessage)) != 0 {
		t.Error("blank send must not emit")
	}
}

func TestSocketEventsRouteToConversation(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	s.disp.Dispatch(wire.EventNewMessage, &model.Message{ID: "m1", SenderID: "u2", CreatedAt: at(0)})
	// Message from an unrelated sender must be ignored.
	s.disp.Dispatch(wire.EventNewMessage, &model.Message{ID: "m2", SenderID: "u9", CreatedAt: at(1)})

	got := ids(c.Messages())
	if !equalIDs(got, "m1") {
		t.Errorf("list = %v, want only the open peer's message", got)
	}
}

func TestTypingSignalSetsFlag(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	if c.PeerTyping() {
		t.Fatal("typing flag set before any signal")
	}

	s.disp.Dispatch(wire.EventUserTyping, &wire.TypingSignal{UserID: "u2"})
	if !c.PeerTyping() {
		t.Error("typing flag not set after peer signal")
	}
}

func TestTypingSignalFromOtherUserIgnored(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	s.disp.Dispatch(wire.EventUserTyping, &wire.TypingSignal{UserID: "u9"})
	if c.PeerTyping() {
		t.Error("typing flag set by a signal from another user")
	}
}

func TestInputChangedThrottled(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	for i := 0; i < 10; i++ {
		c.InputChanged()
	}

	if n := len(s.emittedEvents(wire.EventTyping)); n != 1 {
		t.Errorf("emitted %d typing frames for a burst of input changes, want 1", n)
	}
}

func TestMarkRead(t *testing.T) {
	c, s := newConv(t, &fakeAPI{})

	c.MarkRead()

	frames := s.emittedEvents(wire.EventRead)
	if len(frames) != 1 {
		t.Fatalf("emitted %d read frames, want 1", len(frames))
	}
	out, ok := frames[0].payload.(wire.ReadOut)
	if !ok || out.SenderID != "u2" {
		t.Errorf("payload = %#v", frames[0].payload)
	}
}

func TestCloseDetachesListeners(t *testing.T) {
	s := newFakeSocket()
	c := New("u2", "u1", &fakeAPI{}, s, zap.NewNop())

	c.Close()

	s.disp.Dispatch(wire.EventNewMessage, &model.Message{ID: "m1", SenderID: "u2", CreatedAt: at(0)})
	if len(c.Messages()) != 0 {
		t.Error("closed conversation still ingesting events")
	}
	if n := s.disp.HandlerCount(wire.EventNewMessage); n != 0 {
		t.Errorf("%d listeners still attached after Close", n)
	}
}

func TestCloseOnlyDetachesOwnListeners(t *testing.T) {
	s := newFakeSocket()
	other := 0
	s.On(wire.EventNewMessage, func(any) { other++ })

	c := New("u2", "u1", &fakeAPI{}, s, zap.NewNop())
	c.Close()

	s.disp.Dispatch(wire.EventNewMessage, &model.Message{ID: "m1", SenderID: "u2", CreatedAt: at(0)})
	if other != 1 {
		t.Errorf("unrelated listener ran %d times, want 1 (Close must pass its exact handlers)", other)
	}
}

func TestUpdateCallbackFires(t *testing.T) {
	c, _ := newConv(t, &fakeAPI{})

	updates := 0
	c.OnUpdate(func() { updates++ })

	c.HandleIncoming(msg("m1", "u2", at(0)))
	c.HandleIncoming(msg("m1", "u2", at(0))) // duplicate: no update

	if updates != 1 {
		t.Errorf("updates = %d, want 1 (duplicates must not notify)", updates)
	}
}
