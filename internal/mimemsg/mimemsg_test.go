package mimemsg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/interactive-solutions/go-email"
)

func TestValidateRejectsBlankRecipient(t *testing.T) {
	err := Validate(email.Message{
		From: "sender@example.com",
		To:   []string{"a@example.com"},
		Cc:   []string{"  "},
	})

	var ve *email.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "cc", ve.Field)
	assert.True(t, errors.Is(err, email.BlankAddressErr))
}

func TestValidateRejectsMissingSender(t *testing.T) {
	err := Validate(email.Message{From: " ", To: []string{"a@example.com"}})
	assert.True(t, errors.Is(err, email.MissingSenderErr))
}

func TestValidateRejectsMissingAttachment(t *testing.T) {
	err := Validate(email.Message{
		From:        "sender@example.com",
		To:          []string{"a@example.com"},
		Attachments: []string{filepath.Join(t.TempDir(), "missing.pdf")},
	})

	var ve *email.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, "attachments", ve.Field)
}

func TestBuildWritesMime(t *testing.T) {
	attachment := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(attachment, []byte("quarterly numbers"), 0o600))

	m, err := Build(email.Message{
		From:        " sender@example.com ",
		To:          []string{" a@example.com"},
		Cc:          []string{"b@example.com "},
		Subject:     "Report",
		Body:        "<p>see attached</p>",
		BodyIsHTML:  true,
		Attachments: []string{attachment},
	}, "0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "<sender@example.com>")
	assert.Contains(t, out, "<a@example.com>")
	assert.Contains(t, out, "<b@example.com>")
	assert.Contains(t, out, "Subject: Report")
	assert.Contains(t, out, "text/html")
	assert.Contains(t, out, "report.txt")
	assert.Contains(t, out, "0123456789abcdef0123456789abcdef")
}

func TestRecipientsAreTrimmed(t *testing.T) {
	got := Recipients(email.Message{
		To:  []string{" a@example.com"},
		Cc:  []string{"b@example.com "},
		Bcc: []string{"\tc@example.com"},
	})

	assert.Equal(t, []string{"a@example.com", "b@example.com", "c@example.com"}, got)
}
