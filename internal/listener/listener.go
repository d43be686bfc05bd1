package listener

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/config"
	"nfce/internal/connectors"
	gmailconnector "nfce/internal/connectors/gmail"
	imapconnector "nfce/internal/connectors/imap"
	"nfce/internal/logger"
	"nfce/internal/pipeline"
)

// ExportSource yields the rows of the receipts a cycle saved.
type ExportSource interface {
	ExportRows(ctx context.Context, receiptIDs []int) ([]internal.ReceiptExportRow, error)
}

type ConnectorFactory func(ctx context.Context, provider string) (connectors.MailConnector, error)

// Service polls a mailbox and ingests every receipt it finds.
type Service struct {
	cfg       config.Config
	processor connectors.MessageProcessor
	exports   ExportSource
	connect   ConnectorFactory
	log       *zap.Logger
}

func NewService(cfg config.Config, processor connectors.MessageProcessor, exports ExportSource, log *zap.Logger) *Service {
	s := &Service{cfg: cfg, processor: processor, exports: exports, log: logger.OrNop(log)}
	s.connect = s.makeConnector
	return s
}

// WithConnectorFactory replaces how mailbox connectors are built.
func (s *Service) WithConnectorFactory(f ConnectorFactory) *Service {
	s.connect = f
	return s
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.MailListenerIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if _, err := s.RunCycle(ctx); err != nil && ctx.Err() == nil {
			s.log.Error("listener cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches once, processes every message and exports what was saved
// when auto export is on.
func (s *Service) RunCycle(ctx context.Context) (connectors.FetchResult, error) {
	provider := strings.ToLower(strings.TrimSpace(s.cfg.MailListenerProvider))
	mailConnector, err := s.connect(ctx, provider)
	if err != nil {
		return connectors.FetchResult{}, err
	}

	fetchService := connectors.NewFetchService(mailConnector, connectors.NewMailArchive(s.cfg.RawMailDir), s.processor, s.log)
	res, err := fetchService.FetchAndProcess(ctx, s.cfg.MailListenerLabel, s.cfg.MailListenerFetchMax)
	if err != nil {
		return res, err
	}

	if s.cfg.MailListenerAutoExport && len(res.ReceiptIDs) > 0 {
		if err := s.export(ctx, res.ReceiptIDs); err != nil {
			return res, err
		}
	}

	s.log.Info("listener cycle done",
		zap.String("provider", provider),
		zap.Int("fetched", res.Fetched),
		zap.Int("processed", res.Processed),
		zap.Int("skipped", res.Skipped),
		zap.Int("duplicates", res.Duplicates),
		zap.Int("failed", res.Failed),
	)
	return res, nil
}

func (s *Service) export(ctx context.Context, receiptIDs []int) error {
	rows, err := s.exports.ExportRows(ctx, receiptIDs)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	filename := fmt.Sprintf("receipts_%s.xlsx", time.Now().UTC().Format("20060102T150405Z"))
	return pipeline.ExportReceiptsToXLSX(rows, filepath.Join(s.cfg.OutputDir, "listener", filename))
}

func (s *Service) makeConnector(ctx context.Context, provider string) (connectors.MailConnector, error) {
	switch provider {
	case gmailconnector.Provider:
		return gmailconnector.NewConnector(ctx, s.cfg)
	case imapconnector.Provider:
		return imapconnector.NewConnector(s.cfg)
	default:
		return nil, fmt.Errorf("unsupported listener provider: %s", provider)
	}
}
