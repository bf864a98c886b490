package entity

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Message represents a direct message between two identities
type Message struct {
	ID         string    `json:"id"`
	SenderID   string    `json:"sender_id"`
	ReceiverID string    `json:"receiver_id"`
	Text       string    `json:"text"`
	ClientID   string    `json:"client_id,omitempty"` // sender-chosen correlation id
	Read       bool      `json:"read"`
	CreatedAt  time.Time `json:"created_at"`
}

// InThread reports whether the message belongs to the unordered pair {a, b}
func (m Message) InThread(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// MaxMessageLength is the maximum length of a DM text message in characters
const MaxMessageLength = 1000

// ValidateMessageText trims the text and validates it, returning the text to store
func ValidateMessageText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyMessage
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return "", ErrMessageTooLong
	}
	return text, nil
}
