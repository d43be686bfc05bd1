package imap

import (
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal/config"
)

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(config.Config{IMAPHost: "imap.example.com"})
	assert.ErrorContains(t, err, "IMAP_USER")

	c, err := NewConnector(config.Config{IMAPHost: "imap.example.com", IMAPUser: "u", IMAPPassword: "p", IMAPPort: 993, IMAPSecure: true})
	require.NoError(t, err)
	assert.Equal(t, 993, c.port)
}

func TestToMessage(t *testing.T) {
	when := time.Date(2024, 3, 10, 21, 45, 0, 0, time.UTC)
	msg := &imap.Message{
		Uid:          42,
		InternalDate: when,
		Envelope: &imap.Envelope{
			Subject: "Sua NFC-e",
			From:    []*imap.Address{{PersonalName: "Supermercado BH", MailboxName: "nfce", HostName: "bh.com.br"}},
		},
	}

	got := toMessage(msg, []byte("raw"))
	assert.Equal(t, Provider, got.Provider)
	assert.Equal(t, "imap-42", got.MessageID)
	assert.Equal(t, "Supermercado BH <nfce@bh.com.br>", got.From)
	assert.Equal(t, "2024-03-10T21:45:00Z", got.ReceivedAt)
}
