// Package wire defines the socket frame format and the closed set of event
// payloads exchanged with the HostHub realtime channel. Raw payloads are
// decoded and validated here, before they reach application logic.
package wire

import (
	"errors"
	"fmt"

	"github.com/goccy/go-json"

	"github.com/hosthub/hubchat/internal/model"
)

// Inbound event names broadcast by the server.
const (
	EventNewMessage    = "new_message"
	EventUserTyping    = "user_typing"
	EventServerMessage = "server_message"
)

// Outbound event names accepted by the server.
const (
	EventMessage = "message"
	EventTyping  = "typing"
	EventRead    = "read"
)

// ErrUnknownEvent is returned by Decode for event names outside the closed set.
var ErrUnknownEvent = errors.New("unknown event")

// Frame is the envelope for every frame on the socket.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// TypingSignal is the payload of a user_typing event.
type TypingSignal struct {
	UserID string `json:"user_id"`
}

// ServerNotice is the payload of a server_message event.
type ServerNotice struct {
	Level string `json:"level,omitempty"`
	Text  string `json:"message"`
}

// MessageOut is the outbound payload for sending a chat message.
type MessageOut struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
	Content    string `json:"content"`
}

// TypingOut is the outbound payload signalling the local user is typing.
type TypingOut struct {
	Type       string `json:"type"`
	ReceiverID string `json:"receiver_id"`
}

// ReadOut is the outbound payload marking a peer's messages as read.
type ReadOut struct {
	Type     string `json:"type"`
	SenderID string `json:"sender_id"`
}

// NewMessageOut builds the outbound frame payload for a chat message.
func NewMessageOut(receiverID, content string) MessageOut {
	return MessageOut{Type: "message", ReceiverID: receiverID, Content: content}
}

// NewTypingOut builds the outbound frame payload for a typing signal.
func NewTypingOut(receiverID string) TypingOut {
	return TypingOut{Type: "typing", ReceiverID: receiverID}
}

// NewReadOut builds the outbound frame payload for a read receipt.
func NewReadOut(senderID string) ReadOut {
	return ReadOut{Type: "read", SenderID: senderID}
}

// Encode serializes a frame for the wire.
func Encode(event string, payload any) ([]byte, error) {
	var data json.RawMessage
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s payload: %w", event, err)
		}
		data = raw
	}
	buf, err := json.Marshal(Frame{Event: event, Data: data})
	if err != nil {
		return nil, fmt.Errorf("marshal frame: %w", err)
	}
	return buf, nil
}

// Decode parses a raw frame and returns the event name plus its validated,
// typed payload: *model.Message, *TypingSignal or *ServerNotice. Frames with
// an event name outside the closed set return ErrUnknownEvent.
func Decode(raw []byte) (string, any, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return "", nil, fmt.Errorf("unmarshal frame: %w", err)
	}
	if f.Event == "" {
		return "", nil, errors.New("frame has no event name")
	}

	switch f.Event {
	case EventNewMessage:
		var m model.Message
		if err := json.Unmarshal(f.Data, &m); err != nil {
			return f.Event, nil, fmt.Errorf("unmarshal %s: %w", f.Event, err)
		}
		if m.ID == "" || m.SenderID == "" {
			return f.Event, nil, fmt.Errorf("%s missing id or sender_id", f.Event)
		}
		return f.Event, &m, nil
	case EventUserTyping:
		var ts TypingSignal
		if err := json.Unmarshal(f.Data, &ts); err != nil {
			return f.Event, nil, fmt.Errorf("unmarshal %s: %w", f.Event, err)
		}
		if ts.UserID == "" {
			return f.Event, nil, fmt.Errorf("%s missing user_id", f.Event)
		}
		return f.Event, &ts, nil
	case EventServerMessage:
		var sn ServerNotice
		if err := json.Unmarshal(f.Data, &sn); err != nil {
			return f.Event, nil, fmt.Errorf("unmarshal %s: %w", f.Event, err)
		}
		return f.Event, &sn, nil
	default:
		return f.Event, nil, fmt.Errorf("%q: %w", f.Event, ErrUnknownEvent)
	}
}
