package connectors

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal"
	"nfce/internal/pipeline"
)

type stubConnector struct {
	messages []internal.FetchedMailMessage
	err      error
}

func (c *stubConnector) FetchInbox(_ context.Context, _ string, max int) ([]internal.FetchedMailMessage, error) {
	if c.err != nil {
		return nil, c.err
	}
	if len(c.messages) > max {
		return c.messages[:max], nil
	}
	return c.messages, nil
}

type stubProcessor struct {
	statuses map[string]string
}

func (p *stubProcessor) ProcessMessage(_ context.Context, msg internal.FetchedMailMessage) (pipeline.MailResult, error) {
	status := p.statuses[msg.MessageID]
	res := pipeline.MailResult{MessageID: msg.MessageID, Status: status}
	if status == pipeline.MailStatusProcessed {
		res.ReceiptIDs = []int{len(msg.MessageID)}
	}
	return res, nil
}

func TestFetchAndProcessCountsOutcomes(t *testing.T) {
	dir := t.TempDir()
	conn := &stubConnector{messages: []internal.FetchedMailMessage{
		{Provider: "imap", MessageID: "a", Raw: []byte("Subject: a\r\n\r\nbody a")},
		{Provider: "imap", MessageID: "bb", Raw: []byte("Subject: b\r\n\r\nbody b")},
		{Provider: "imap", MessageID: "ccc", Raw: []byte("Subject: a\r\n\r\nbody a")},
	}}
	proc := &stubProcessor{statuses: map[string]string{
		"a":   pipeline.MailStatusProcessed,
		"bb":  pipeline.MailStatusSkipped,
		"ccc": pipeline.MailStatusDuplicate,
	}}

	svc := NewFetchService(conn, NewMailArchive(dir), proc, nil)
	res, err := svc.FetchAndProcess(context.Background(), "INBOX", 10)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Fetched)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 1, res.Duplicates)
	assert.Equal(t, []int{1}, res.ReceiptIDs)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestFetchAndProcessConnectorError(t *testing.T) {
	svc := NewFetchService(&stubConnector{err: errors.New("auth failed")}, nil, &stubProcessor{}, nil)
	_, err := svc.FetchAndProcess(context.Background(), "INBOX", 10)
	assert.EqualError(t, err, "auth failed")
}

func TestMailArchiveIsContentAddressed(t *testing.T) {
	archive := NewMailArchive(filepath.Join(t.TempDir(), "raw"))
	msg := internal.FetchedMailMessage{Raw: []byte("same")}

	p1, err := archive.Store(msg)
	require.NoError(t, err)
	p2, err := archive.Store(msg)
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, ".eml", filepath.Ext(p1))
}
