package connectors

import (
	"context"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/logger"
	"nfce/internal/pipeline"
)

// MessageProcessor handles one fetched message end to end.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, msg internal.FetchedMailMessage) (pipeline.MailResult, error)
}

type FetchService struct {
	connector MailConnector
	archive   *MailArchive
	processor MessageProcessor
	log       *zap.Logger
}

type FetchResult struct {
	Fetched    int
	Processed  int
	Skipped    int
	Duplicates int
	Failed     int
	ReceiptIDs []int
}

func NewFetchService(connector MailConnector, archive *MailArchive, processor MessageProcessor, log *zap.Logger) *FetchService {
	return &FetchService{connector: connector, archive: archive, processor: processor, log: logger.OrNop(log)}
}

func (s *FetchService) FetchAndProcess(ctx context.Context, label string, max int) (FetchResult, error) {
	messages, err := s.connector.FetchInbox(ctx, label, max)
	if err != nil {
		return FetchResult{}, err
	}

	out := FetchResult{Fetched: len(messages)}
	for _, msg := range messages {
		if s.archive != nil {
			if _, err := s.archive.Store(msg); err != nil {
				return out, err
			}
		}

		res, err := s.processor.ProcessMessage(ctx, msg)
		if err != nil {
			return out, err
		}
		switch res.Status {
		case pipeline.MailStatusProcessed:
			out.Processed++
		case pipeline.MailStatusSkipped:
			out.Skipped++
		case pipeline.MailStatusDuplicate:
			out.Duplicates++
		case pipeline.MailStatusFailed:
			out.Failed++
		}
		out.ReceiptIDs = append(out.ReceiptIDs, res.ReceiptIDs...)
		s.log.Debug("message handled",
			zap.String("provider", msg.Provider),
			zap.String("message_id", msg.MessageID),
			zap.String("status", res.Status),
			zap.Int("receipts", len(res.ReceiptIDs)))
	}
	return out, nil
}
