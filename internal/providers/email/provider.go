package email

import (
	"context"
	"strings"
)

// Message is one outgoing email. Text is optional; when set the message is
// sent as multipart/alternative so plain-text clients get a readable body.
type Message struct {
	To      []string
	ReplyTo string
	Subject string
	HTML    string
	Text    string
}

// recipients returns To without blanks.
func (m Message) recipients() []string {
	out := make([]string, 0, len(m.To))
	for _, addr := range m.To {
		if addr = strings.TrimSpace(addr); addr != "" {
			out = append(out, addr)
		}
	}
	return out
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider drops every message. It is used when no SMTP host is set.
type NoOpProvider struct{}

func (NoOpProvider) Send(context.Context, Message) error { return nil }
