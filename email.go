package email

import (
	"context"
	"io"
)

const UserAgent = "InteractiveSolutions/GoEmail-1.0"

// Message describes a single send request.
//
// Attachments are file paths read by the transport at send time. Transports must
// treat a Message as read-only.
type Message struct {
	From        string   `json:"from"`
	To          []string `json:"to"`
	Cc          []string `json:"cc"`
	Bcc         []string `json:"bcc"`
	Attachments []string `json:"attachments"`

	Subject    string `json:"subject"`
	Body       string `json:"body"`
	BodyIsHTML bool   `json:"html"`
}

// Recipients returns every To, Cc and Bcc address in that order.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc)+len(m.Bcc))
	out = append(out, m.To...)
	out = append(out, m.Cc...)
	out = append(out, m.Bcc...)

	return out
}

func (m Message) clone() Message {
	m.To = cloneStrings(m.To)
	m.Cc = cloneStrings(m.Cc)
	m.Bcc = cloneStrings(m.Bcc)
	m.Attachments = cloneStrings(m.Attachments)

	return m
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)

	return out
}

// Result is returned for every accepted message. ID is transport defined and
// never empty.
type Result struct {
	ID string `json:"id"`
}

// Transport delivers messages. Implementations must honor ctx cancellation and
// release held resources on Close.
type Transport interface {
	io.Closer

	Send(ctx context.Context, msg Message) (Result, error)
}

// TransportFactory builds a transport when the container resolves it.
type TransportFactory func() (Transport, error)
