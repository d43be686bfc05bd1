package parser

import (
	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/logger"
)

const (
	StrategyPortal  = "portal"
	StrategyGeneric = "generic"
	StrategyText    = "text"
)

// Strategy extracts items from a prepared document. A nil or empty result
// means the strategy did not recognize the layout.
type Strategy interface {
	Name() string
	Parse(doc *Document) *internal.ReceiptParseResult
}

type Options struct {
	WeightMisparseFix bool
}

// Chain runs strategies in a fixed order and keeps the first that yields
// items.
type Chain struct {
	strategies []Strategy
	log        *zap.Logger
}

func NewChain(opts Options, log *zap.Logger) *Chain {
	return NewChainWith(log,
		&PortalStrategy{WeightMisparseFix: opts.WeightMisparseFix},
		&GenericStrategy{},
		&TextStrategy{},
	)
}

func NewChainWith(log *zap.Logger, strategies ...Strategy) *Chain {
	return &Chain{strategies: strategies, log: logger.OrNop(log)}
}

func (c *Chain) Parse(raw string) *internal.ReceiptParseResult {
	return c.ParseDocument(NewDocument(raw))
}

// ParseDocument never returns nil; when nothing is recognized the result has
// an empty item list.
func (c *Chain) ParseDocument(doc *Document) *internal.ReceiptParseResult {
	result := internal.EmptyResult()
	for _, s := range c.strategies {
		res := s.Parse(doc)
		if res == nil || len(res.Items) == 0 {
			c.log.Debug("strategy found no items", zap.String("strategy", s.Name()))
			continue
		}
		result = res
		result.Strategy = s.Name()
		break
	}
	if result.SuggestedName == "" {
		result.SuggestedName = internal.DefaultSuggestedName
	}
	applyHeader(doc, result)

	c.log.Debug("receipt parsed",
		zap.String("strategy", result.Strategy),
		zap.Int("items", len(result.Items)))
	return result
}
