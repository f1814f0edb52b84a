// Package mimemsg turns an email.Message into a go-mail message. It is shared
// by every transport that needs a MIME representation.
package mimemsg

import (
	"os"
	"strings"

	"github.com/wneessen/go-mail"

	"github.com/interactive-solutions/go-email"
)

// Validate rejects blank senders, blank recipients and missing attachments.
func Validate(msg email.Message) error {
	if strings.TrimSpace(msg.From) == "" {
		return &email.ValidationError{Field: "from", Msg: "is required", Err: email.MissingSenderErr}
	}

	if len(msg.Recipients()) == 0 {
		return &email.ValidationError{Field: "to", Msg: "no recipients", Err: email.NoRecipientsErr}
	}

	for _, group := range []struct {
		field string
		list  []string
	}{{"to", msg.To}, {"cc", msg.Cc}, {"bcc", msg.Bcc}} {
		for _, addr := range group.list {
			if strings.TrimSpace(addr) == "" {
				return &email.ValidationError{Field: group.field, Value: addr, Msg: "blank address", Err: email.BlankAddressErr}
			}
		}
	}

	for _, path := range msg.Attachments {
		if strings.TrimSpace(path) == "" {
			return email.NewValidationError("attachments", path, "blank path")
		}

		info, err := os.Stat(path)
		if err != nil {
			return &email.ValidationError{Field: "attachments", Value: path, Msg: "not readable", Err: err}
		}

		if info.IsDir() {
			return email.NewValidationError("attachments", path, "is a directory")
		}
	}

	return nil
}

// Build validates msg and returns the go-mail message carrying id as its
// Message-ID. Addresses are trimmed.
func Build(msg email.Message, id string) (*mail.Msg, error) {
	if err := Validate(msg); err != nil {
		return nil, err
	}

	m := mail.NewMsg()
	m.SetUserAgent(email.UserAgent)
	m.SetMessageIDWithValue(id)
	m.SetDate()

	if err := m.From(strings.TrimSpace(msg.From)); err != nil {
		return nil, &email.ValidationError{Field: "from", Value: msg.From, Msg: "malformed address", Err: err}
	}

	adders := []struct {
		field string
		list  []string
		add   func(string) error
	}{
		{"to", msg.To, m.AddTo},
		{"cc", msg.Cc, m.AddCc},
		{"bcc", msg.Bcc, m.AddBcc},
	}

	for _, a := range adders {
		for _, addr := range a.list {
			if err := a.add(strings.TrimSpace(addr)); err != nil {
				return nil, &email.ValidationError{Field: a.field, Value: addr, Msg: "malformed address", Err: err}
			}
		}
	}

	m.Subject(msg.Subject)

	contentType := mail.TypeTextPlain
	if msg.BodyIsHTML {
		contentType = mail.TypeTextHTML
	}
	m.SetBodyString(contentType, msg.Body)

	for _, path := range msg.Attachments {
		m.AttachFile(path)
	}

	return m, nil
}

// Recipients returns every trimmed To, Cc and Bcc address, the SMTP envelope.
func Recipients(msg email.Message) []string {
	all := msg.Recipients()
	out := make([]string, 0, len(all))
	for _, addr := range all {
		out = append(out, strings.TrimSpace(addr))
	}

	return out
}
