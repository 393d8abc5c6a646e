package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound = errors.New("not found")

	// ErrNetworkUnavailable means no response was obtained at all
	// (dial failure, timeout, canceled context).
	ErrNetworkUnavailable = errors.New("network unavailable")

	ErrNotAuthenticated = errors.New("not authenticated")
)

// MaxMessageLength is the message content limit in unicode code points.
const MaxMessageLength = 1000

// RequestFailed is returned when the remote explicitly rejected a request.
type RequestFailed struct {
	Status  int
	Message string
}

func (e *RequestFailed) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.Status)
	}
	return fmt.Sprintf("request failed with status %d: %s", e.Status, e.Message)
}

// ValidationError is returned when caller input violates a local
// precondition. It never reaches the network.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

type ChatroomType string

const (
	ChatroomTypeDM    ChatroomType = "DM"
	ChatroomTypeGroup ChatroomType = "GROUP"
)

// UserIdentity identifies a user across all entities.
type UserIdentity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// Chatroom is the raw room record as the remote stores it. For DM rooms
// Name is a placeholder; the display identity is derived during enrichment.
type Chatroom struct {
	ID   int64        `json:"id"`
	Type ChatroomType `json:"type"`
	Name string       `json:"name"`
}

// EnrichedChatroom is a Chatroom augmented with display-ready fields.
type EnrichedChatroom struct {
	Chatroom

	// DisplayName is the counterpart's username for DM rooms and the
	// stored name for group rooms.
	DisplayName      string
	ParticipantCount int

	// Degraded is set when a participant fetch failed and the count
	// was substituted with zero.
	Degraded bool
}

// Initial returns a one-character label for room lists.
func (c EnrichedChatroom) Initial() string {
	for _, r := range c.DisplayName {
		return string(r)
	}
	if c.Type == ChatroomTypeDM {
		return "@"
	}
	return "#"
}

// Message is one chat message. Immutable once created; ordering is the
// server-assigned fetch order.
type Message struct {
	ID        int64        `json:"id"`
	Sender    UserIdentity `json:"sender"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
}

// SenderName returns the sender's username, or a placeholder when the
// remote omitted the sender record.
func (m Message) SenderName() string {
	if m.Sender.Username == "" {
		return "Unknown"
	}
	return m.Sender.Username
}
