package model

import "time"

// Message is a direct message between two users. Identity is the backend-assigned
// ID; a message is immutable once created. Optimistic local copies carry a
// client-generated ID and Pending=true until the server-confirmed copy replaces them.
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`

	Pending bool `json:"-"`
}

// Before reports whether m sorts strictly before other (createdAt ascending).
// Equal timestamps are not "before": ties keep insertion order.
func (m Message) Before(other Message) bool {
	return m.CreatedAt.Before(other.CreatedAt)
}

// Peer is the other participant of a one-to-one conversation, as returned by
// the conversations listing endpoint.
type Peer struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}
