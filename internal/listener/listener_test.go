package listener

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nfce/internal"
	"nfce/internal/config"
	"nfce/internal/connectors"
	"nfce/internal/pipeline"
)

type fakeConnector struct{ messages []internal.FetchedMailMessage }

func (c *fakeConnector) FetchInbox(context.Context, string, int) ([]internal.FetchedMailMessage, error) {
	return c.messages, nil
}

type fakeProcessor struct{}

func (fakeProcessor) ProcessMessage(_ context.Context, msg internal.FetchedMailMessage) (pipeline.MailResult, error) {
	return pipeline.MailResult{MessageID: msg.MessageID, Status: pipeline.MailStatusProcessed, ReceiptIDs: []int{7}}, nil
}

type fakeExports struct{ asked []int }

func (e *fakeExports) ExportRows(_ context.Context, ids []int) ([]internal.ReceiptExportRow, error) {
	e.asked = ids
	return []internal.ReceiptExportRow{{ReceiptID: 7, AccessKey: "k", ReceiptName: "Compra", LineNo: 1, ItemName: "Arroz", Quantity: 1, UnitPrice: 25}}, nil
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		OutputDir:               filepath.Join(dir, "out"),
		RawMailDir:              filepath.Join(dir, "raw"),
		MailListenerProvider:    "fake",
		MailListenerLabel:       "INBOX",
		MailListenerFetchMax:    10,
		MailListenerIntervalSec: 1,
	}
}

func TestRunCycleExportsSavedReceipts(t *testing.T) {
	cfg := testConfig(t)
	cfg.MailListenerAutoExport = true
	exports := &fakeExports{}

	svc := NewService(cfg, fakeProcessor{}, exports, nil).
		WithConnectorFactory(func(context.Context, string) (connectors.MailConnector, error) {
			return &fakeConnector{messages: []internal.FetchedMailMessage{{Provider: "fake", MessageID: "m1", Raw: []byte("x")}}}, nil
		})

	res, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Processed)
	assert.Equal(t, []int{7}, exports.asked)

	files, err := os.ReadDir(filepath.Join(cfg.OutputDir, "listener"))
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestRunCycleUnknownProvider(t *testing.T) {
	cfg := testConfig(t)
	cfg.MailListenerProvider = "pop3"
	_, err := NewService(cfg, fakeProcessor{}, &fakeExports{}, nil).RunCycle(context.Background())
	assert.ErrorContains(t, err, "unsupported listener provider")
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	svc := NewService(cfg, fakeProcessor{}, &fakeExports{}, nil).
		WithConnectorFactory(func(context.Context, string) (connectors.MailConnector, error) {
			return &fakeConnector{}, nil
		})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
