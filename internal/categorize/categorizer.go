package categorize

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"nfce/internal"
	"nfce/internal/logger"
)

// Categorizer assigns categories from a published Index. Until the first
// index is published every lookup answers "outros".
type Categorizer struct {
	idx       atomic.Pointer[Index]
	buildOnce sync.Once
	ready     chan struct{}
	readyOnce sync.Once

	mu      sync.Mutex
	waiters []func()

	log *zap.Logger
}

func New(log *zap.Logger) *Categorizer {
	return &Categorizer{ready: make(chan struct{}), log: logger.OrNop(log)}
}

// NewReady builds the index synchronously and returns a ready categorizer.
func NewReady(seed Seed, log *zap.Logger) *Categorizer {
	c := New(log)
	c.Build(seed)
	return c
}

// Build publishes the first index. Later calls are no-ops; use Rebuild to
// replace the dictionary.
func (c *Categorizer) Build(seed Seed) {
	c.buildOnce.Do(func() { c.publish(seed) })
}

// Rebuild replaces the published index atomically. Readers see either the
// old or the new tables, never a partial build.
func (c *Categorizer) Rebuild(seed Seed) {
	c.buildOnce.Do(func() {})
	c.publish(seed)
}

// BuildAsync builds in the background and returns immediately.
func (c *Categorizer) BuildAsync(seed Seed) {
	go c.Build(seed)
}

func (c *Categorizer) publish(seed Seed) {
	idx := BuildIndex(seed)
	c.idx.Store(idx)
	c.log.Info("category index published",
		zap.Int("exact", len(idx.Exact)),
		zap.Int("first_word", len(idx.FirstWord)),
		zap.Int("patterns", len(idx.Patterns)),
	)
	c.readyOnce.Do(func() {
		close(c.ready)
		c.mu.Lock()
		waiters := c.waiters
		c.waiters = nil
		c.mu.Unlock()
		for _, fn := range waiters {
			fn()
		}
	})
}

// Ready is closed once the first index is published.
func (c *Categorizer) Ready() <-chan struct{} {
	return c.ready
}

// OnReady runs fn once the first index is published, or right away if it
// already is.
func (c *Categorizer) OnReady(fn func()) {
	c.mu.Lock()
	select {
	case <-c.ready:
		c.mu.Unlock()
		fn()
		return
	default:
	}
	c.waiters = append(c.waiters, fn)
	c.mu.Unlock()
}

func (c *Categorizer) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Categorizer) Categorize(name string) internal.Category {
	cat, _ := c.Lookup(name)
	return cat
}

// Lookup also reports which stage produced the answer.
func (c *Categorizer) Lookup(name string) (internal.Category, string) {
	idx := c.idx.Load()
	if idx == nil {
		return internal.CategoryUncategorized, StageNone
	}
	return idx.Lookup(name)
}

// Apply fills Category on every item in place.
func (c *Categorizer) Apply(items []internal.ReceiptItem) {
	for i := range items {
		cat := c.Categorize(items[i].Name)
		items[i].Category = &cat
	}
}
