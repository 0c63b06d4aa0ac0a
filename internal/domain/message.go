package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

type Sender struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
}

// Message is a persisted chat message with its sender already resolved.
type Message struct {
	ID        string    `json:"id"`
	EventID   string    `json:"eventId"`
	Sender    Sender    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// NormalizeContent trims the content and checks it against maxLen runes (0 disables the limit).
func NormalizeContent(content string, maxLen int) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return "", ErrEmptyContent
	}
	if maxLen > 0 && utf8.RuneCountInString(content) > maxLen {
		return "", ErrContentTooLong
	}
	return content, nil
}
