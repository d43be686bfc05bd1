package gmail

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal/config"
)

const rawMail = "Message-ID: <abc@mail.example.com>\r\n" +
	"From: =?UTF-8?Q?Padaria_P=C3=A3o_Bom?= <nfce@paobom.com.br>\r\n" +
	"Subject: =?UTF-8?Q?Sua_NFC-e_est=C3=A1_dispon=C3=ADvel?=\r\n" +
	"Date: Sun, 10 Mar 2024 18:45:12 -0300\r\n" +
	"\r\n" +
	"Consulte em https://www.fazenda.pr.gov.br/nfce/qrcode?p=1\r\n"

func TestToMessageReadsHeaders(t *testing.T) {
	got := toMessage("18e2f", []byte(rawMail))
	assert.Equal(t, Provider, got.Provider)
	assert.Equal(t, "<abc@mail.example.com>", got.MessageID)
	assert.Equal(t, "Sua NFC-e está disponível", got.Subject)
	assert.Equal(t, "Padaria Pão Bom <nfce@paobom.com.br>", got.From)
	assert.Equal(t, "2024-03-10T21:45:12Z", got.ReceivedAt)
}

func TestToMessageFallsBackToGmailID(t *testing.T) {
	got := toMessage("18e2f", []byte("not a message"))
	assert.Equal(t, "18e2f", got.MessageID)
}

func TestDecodeBase64URL(t *testing.T) {
	enc := base64.RawURLEncoding.EncodeToString([]byte(rawMail))
	out, err := decodeBase64URL(enc)
	require.NoError(t, err)
	assert.Equal(t, rawMail, string(out))

	_, err = decodeBase64URL("***")
	assert.Error(t, err)
}

func TestNewConnectorRequiresCredentials(t *testing.T) {
	_, err := NewConnector(context.Background(), config.Config{GmailClientID: "id"})
	assert.ErrorContains(t, err, "GMAIL_CLIENT_SECRET")
}
