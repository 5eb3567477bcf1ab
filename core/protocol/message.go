// Package protocol defines the conversation message model shared by every
// stage of an exchange.
package protocol

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleURL marks a message whose content was produced from a fetched URL
	// or uploaded document rather than typed by a participant.
	RoleURL Role = "URL"
)

// IsValid reports whether r is one of the known roles.
func (r Role) IsValid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant, RoleURL:
		return true
	}
	return false
}

// URLDetail describes the source of extracted content. URL holds either the
// fetched address or the uploaded filename. The extracted body is never kept
// here; it lives in Message.Content.
type URLDetail struct {
	URL  string `json:"url"`
	Size int64  `json:"size"`
	Type string `json:"type"`
}

// Message represents a single turn in a conversation.
//
// Streaming and IsError are transient flags maintained while an exchange is in
// flight. ReplyTo links an assistant message to the user message that
// prompted it.
type Message struct {
	ID        string     `json:"id"`
	Role      Role       `json:"role"`
	Content   string     `json:"content"`
	Date      time.Time  `json:"date"`
	Streaming bool       `json:"streaming,omitempty"`
	IsError   bool       `json:"isError,omitempty"`
	URLDetail *URLDetail `json:"urlDetail,omitempty"`
	ReplyTo   string     `json:"replyTo,omitempty"`
	Model     string     `json:"model,omitempty"`
}

// NewMessage creates a Message with the given role and content. Identity and
// timestamp are left empty; use message.Factory to produce normalized records.
//
// Example:
//
//	msg := protocol.NewMessage(protocol.RoleUser, "Hello, world!")
func NewMessage(role Role, content string) Message {
	return Message{Role: role, Content: content}
}

// Clone returns a copy of m that shares no pointers with the original.
func (m Message) Clone() Message {
	if m.URLDetail != nil {
		detail := *m.URLDetail
		m.URLDetail = &detail
	}
	return m
}

// CloneAll returns a new slice holding clones of every message in msgs.
func CloneAll(msgs []Message) []Message {
	copied := make([]Message, len(msgs))
	for i, msg := range msgs {
		copied[i] = msg.Clone()
	}
	return copied
}
