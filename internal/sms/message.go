package sms

import (
	"strings"
	"unicode/utf8"
)

// Message is non-blank SMS text. The text is kept exactly as given.
type Message struct {
	value string
}

// NewMessage rejects empty and whitespace-only text.
func NewMessage(text string) (Message, error) {
	if strings.TrimSpace(text) == "" {
		return Message{}, invalidArgument("message cannot be empty")
	}
	return Message{value: text}, nil
}

func (m Message) Value() string { return m.value }

func (m Message) String() string { return m.value }

// Length returns the byte length of the text. Multi-byte characters count
// as several units.
func (m Message) Length() int { return len(m.value) }

// RuneCount returns the number of characters in the text.
func (m Message) RuneCount() int { return utf8.RuneCountInString(m.value) }

// IsASCII reports whether every byte of the text is 7-bit ASCII.
func (m Message) IsASCII() bool {
	for i := 0; i < len(m.value); i++ {
		if m.value[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
