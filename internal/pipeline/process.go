package pipeline

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/logger"
	"nfce/internal/storage"
)

const (
	MailStatusProcessed = "processed"
	MailStatusSkipped   = "skipped"
	MailStatusFailed    = "failed"
	MailStatusDuplicate = "duplicate"
)

// ReceiptStore is the persistence the mail flow needs.
type ReceiptStore interface {
	SaveReceipt(ctx context.Context, res *internal.ReceiptParseResult) (storage.SaveResult, error)
	IsMailProcessed(ctx context.Context, provider, messageID string) (bool, error)
	MarkMailProcessed(ctx context.Context, msg internal.FetchedMailMessage, status string, receipts int) error
	InsertRun(ctx context.Context, kind string, receiptID *int, timings map[string]float64, counts map[string]int) (string, error)
}

type MailProcessor struct {
	ingest *Service
	store  ReceiptStore
	opts   Options
	log    *zap.Logger
}

func NewMailProcessor(ingest *Service, store ReceiptStore, opts Options, log *zap.Logger) *MailProcessor {
	return &MailProcessor{ingest: ingest, store: store, opts: opts, log: logger.OrNop(log)}
}

type MailResult struct {
	MessageID  string
	Status     string
	Links      int
	ReceiptIDs []int
	Created    int
	Failed     int
}

// ProcessMessage ingests every receipt found in one message and records the
// message in the ledger so it is not processed twice.
func (p *MailProcessor) ProcessMessage(ctx context.Context, msg internal.FetchedMailMessage) (MailResult, error) {
	result := MailResult{MessageID: msg.MessageID}

	done, err := p.store.IsMailProcessed(ctx, msg.Provider, msg.MessageID)
	if err != nil {
		return result, err
	}
	if done {
		result.Status = MailStatusDuplicate
		return result, nil
	}

	start := time.Now()
	extraction, err := ExtractFromEmail(msg.Raw)
	if err != nil {
		p.log.Warn("unreadable message", zap.String("message_id", msg.MessageID), zap.Error(err))
		result.Status = MailStatusFailed
		return result, p.store.MarkMailProcessed(ctx, msg, result.Status, 0)
	}
	result.Links = len(extraction.Links)

	if detect := DetectReceiptMail(extraction); !detect.IsReceipt {
		result.Status = MailStatusSkipped
		p.log.Debug("message is not a receipt", zap.String("message_id", msg.MessageID), zap.Float64("score", detect.Score))
		return result, p.store.MarkMailProcessed(ctx, msg, result.Status, 0)
	}

	var parsed []*internal.ReceiptParseResult
	for _, link := range extraction.Links {
		res, err := p.ingest.Ingest(ctx, link, p.opts)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			p.log.Warn("receipt link failed", zap.String("url", link), zap.Error(err))
			result.Failed++
			continue
		}
		parsed = append(parsed, res)
	}
	for _, doc := range extraction.Documents {
		parsed = append(parsed, p.ingest.Parse(doc.Text, "", p.opts))
	}

	fetchedAt := time.Since(start)
	for _, res := range parsed {
		if len(res.Items) == 0 {
			result.Failed++
			continue
		}
		saved, err := p.store.SaveReceipt(ctx, res)
		if err != nil {
			if errors.Is(err, storage.ErrMissingAccessKey) {
				p.log.Warn("receipt without identity dropped", zap.String("message_id", msg.MessageID))
				result.Failed++
				continue
			}
			return result, err
		}
		result.ReceiptIDs = append(result.ReceiptIDs, saved.ReceiptID)
		if saved.Created {
			result.Created++
		}
	}

	result.Status = MailStatusProcessed
	if len(result.ReceiptIDs) == 0 && result.Failed > 0 {
		result.Status = MailStatusFailed
	}
	if err := p.store.MarkMailProcessed(ctx, msg, result.Status, len(result.ReceiptIDs)); err != nil {
		return result, err
	}

	var firstID *int
	if len(result.ReceiptIDs) > 0 {
		firstID = &result.ReceiptIDs[0]
	}
	_, err = p.store.InsertRun(ctx, "mail", firstID,
		map[string]float64{"fetchMs": float64(fetchedAt.Milliseconds()), "totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"links": result.Links, "documents": len(extraction.Documents), "saved": len(result.ReceiptIDs), "created": result.Created, "failed": result.Failed},
	)
	if err != nil {
		p.log.Warn("run not recorded", zap.Error(err))
	}
	return result, nil
}
