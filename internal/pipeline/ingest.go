package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/categorize"
	"nfce/internal/config"
	"nfce/internal/fetch"
	"nfce/internal/logger"
	"nfce/internal/parser"
)

// DocumentFetcher returns the raw receipt page for a URL.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, rawURL string) (string, error)
}

type Options struct {
	Categorize bool
}

// Service turns a receipt URL into a parsed, optionally categorized result.
// It holds no cache; every call fetches again.
type Service struct {
	fetcher     DocumentFetcher
	chain       *parser.Chain
	categorizer *categorize.Categorizer
	log         *zap.Logger
}

func NewService(fetcher DocumentFetcher, chain *parser.Chain, categorizer *categorize.Categorizer, log *zap.Logger) *Service {
	return &Service{fetcher: fetcher, chain: chain, categorizer: categorizer, log: logger.OrNop(log)}
}

// NewServiceFromConfig wires the configured fetch chain and parser.
func NewServiceFromConfig(cfg config.Config, categorizer *categorize.Categorizer, log *zap.Logger) (*Service, error) {
	fetcher, err := fetch.NewFetcher(cfg, log)
	if err != nil {
		return nil, err
	}
	chain := parser.NewChain(parser.Options{WeightMisparseFix: cfg.ParserWeightMisparseFix}, log)
	return NewService(fetcher, chain, categorizer, log), nil
}

func (s *Service) Ingest(ctx context.Context, rawURL string, opts Options) (*internal.ReceiptParseResult, error) {
	target, err := fetch.ValidateTargetURL(rawURL)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	raw, err := s.fetcher.FetchDocument(ctx, target.String())
	if err != nil {
		return nil, err
	}

	res := s.Parse(raw, target.String(), opts)
	s.log.Info("receipt ingested",
		zap.String("url", target.String()),
		zap.String("strategy", res.Strategy),
		zap.Int("items", len(res.Items)),
		zap.Duration("took", time.Since(start)),
	)
	return res, nil
}

// Parse runs the parser chain over an already fetched document.
func (s *Service) Parse(raw, sourceURL string, opts Options) *internal.ReceiptParseResult {
	doc := parser.NewDocument(raw)
	res := s.chain.ParseDocument(doc)
	if opts.Categorize && s.categorizer != nil {
		s.categorizer.Apply(res.Items)
	}
	res.Meta = parser.ExtractMeta(doc, sourceURL, res)
	return res
}
