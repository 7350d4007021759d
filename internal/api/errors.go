package api

import "fmt"

// FetchError means a history load failed. The UI shows an empty, retryable
// state; no stale data is kept.
type FetchError struct {
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch messages: http %d", e.StatusCode)
	}
	return fmt.Sprintf("fetch messages: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SendError means the durable create-message call failed after the live emit
// may already have reached the peer. The UI marks the message failed; it is
// never silently dropped and never auto-retried.
type SendError struct {
	StatusCode int
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send message: http %d", e.StatusCode)
	}
	return fmt.Sprintf("send message: %v", e.Err)
}

func (e *SendError) Unwrap() error { return e.Err }
