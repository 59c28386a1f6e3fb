package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

// defaultBatchSize is used when callers pass no explicit size.
const defaultBatchSize = 100

// BatchOptions selects what a single orchestrator invocation processes.
type BatchOptions struct {
	BatchSize int
	Pass      int
	ItemIDs   []string // explicit selection; required for Pass >= 2
	RuleIDs   []string // optional rule selection; active rules otherwise
}

// EnhancementService drives product enrichment batch by batch. Every
// collaborator is injected; the service holds no global state and one
// instance can serve any number of sequential batches.
type EnhancementService struct {
	products  domain.ProductStore
	rules     domain.RuleStore
	generator domain.TextGenerator
	hierarchy domain.HierarchyLookup
	parser    *ResponseParser
	log       *zap.Logger
}

// NewEnhancementService wires the orchestrator with its collaborators.
func NewEnhancementService(
	products domain.ProductStore,
	rules domain.RuleStore,
	generator domain.TextGenerator,
	hierarchy domain.HierarchyLookup,
	log *zap.Logger,
) *EnhancementService {
	if log == nil {
		log = zap.NewNop()
	}
	return &EnhancementService{
		products:  products,
		rules:     rules,
		generator: generator,
		hierarchy: hierarchy,
		parser:    NewResponseParser(log),
		log:       log,
	}
}

// ProcessBatch runs one enrichment batch. Product and rule load failures
// abort the call; a failing item is recorded in the report and never stops
// the loop. Pass 2 and later require an explicit item selection and yield
// an empty report without one.
//
// The context cache lives entirely within this call: created empty here,
// discarded on return.
func (s *EnhancementService) ProcessBatch(ctx context.Context, opts BatchOptions) (domain.BatchReport, error) {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}

	cache := newContextCache()
	s.log.Info("starting batch",
		zap.Int("pass", opts.Pass),
		zap.Int("batchSize", opts.BatchSize))

	products, err := s.loadProducts(ctx, opts)
	if err != nil {
		return domain.BatchReport{}, err
	}
	if len(products) == 0 {
		s.log.Warn("no products to process")
		return emptyReport(opts), nil
	}

	rules, err := s.loadRules(ctx, opts)
	if err != nil {
		return domain.BatchReport{}, err
	}
	ruleIDs := make([]string, len(rules))
	for i, r := range rules {
		ruleIDs[i] = r.RuleID
	}

	outcomes := make([]domain.ProductOutcome, 0, len(products))
	successful, failed := 0, 0
	distribution := map[domain.ConfidenceLevel]int{
		domain.ConfidenceLow:    0,
		domain.ConfidenceMedium: 0,
		domain.ConfidenceHigh:   0,
	}

	start := time.Now()
	for idx, product := range products {
		select {
		case <-ctx.Done():
			return domain.BatchReport{}, ctx.Err()
		default:
		}

		s.log.Info("processing product",
			zap.Int("position", idx+1),
			zap.Int("total", len(products)),
			zap.String("item", product.ItemID))

		enh, err := s.enrichOne(ctx, product, rules, ruleIDs, opts.Pass, cache)
		if err != nil {
			failed++
			s.log.Error("product failed",
				zap.String("item", product.ItemID),
				zap.Error(err))
			outcomes = append(outcomes, domain.ProductOutcome{
				ItemID: product.ItemID,
				Error:  err.Error(),
			})
			continue
		}

		successful++
		distribution[enh.ConfidenceLevel]++
		s.log.Info("product processed",
			zap.String("item", product.ItemID),
			zap.String("confidence", string(enh.ConfidenceLevel)))
		outcomes = append(outcomes, domain.ProductOutcome{
			ItemID:          product.ItemID,
			Success:         true,
			ConfidenceScore: enh.ConfidenceScore,
			ConfidenceLevel: enh.ConfidenceLevel,
		})
	}
	elapsed := time.Since(start)

	report := domain.BatchReport{
		Pass:                   opts.Pass,
		BatchSize:              opts.BatchSize,
		TotalProcessed:         len(products),
		Successful:             successful,
		Failed:                 failed,
		SuccessRate:            float64(successful) / float64(len(products)),
		ConfidenceDistribution: distribution,
		ProcessingSeconds:      elapsed.Seconds(),
		AvgSecondsPerProduct:   elapsed.Seconds() / float64(len(products)),
		Outcomes:               outcomes,
	}

	s.log.Info("batch complete",
		zap.Int("successful", successful),
		zap.Int("failed", failed),
		zap.Int("total", len(products)),
		zap.Float64("successRate", report.SuccessRate))
	s.log.Info("context cache efficiency",
		zap.Int("products", len(products)),
		zap.Int("lookups", cache.hits+cache.misses),
		zap.Int("hits", cache.hits),
		zap.Int("misses", cache.misses),
		zap.Int("uniqueCodes", len(cache.entries)),
		zap.Float64("hitRatePct", cache.hitRate()))

	return report, nil
}

// ResumePassOne drains the store with repeated pass-1 batches. It stops
// when nothing is left, when a batch comes back empty, or when a full
// batch makes no progress, which otherwise loops forever on persistently
// failing items.
func (s *EnhancementService) ResumePassOne(ctx context.Context, batchSize int) (domain.ResumeSummary, error) {
	remaining, err := s.products.CountUnprocessed(ctx)
	if err != nil {
		return domain.ResumeSummary{}, fmt.Errorf("counting unprocessed products: %w", err)
	}
	s.log.Info("resuming initial pass", zap.Int64("remaining", remaining))

	var summary domain.ResumeSummary
	if remaining == 0 {
		s.log.Info("nothing to resume")
		return summary, nil
	}

	start := time.Now()
	for {
		report, err := s.ProcessBatch(ctx, BatchOptions{BatchSize: batchSize, Pass: 1})
		if err != nil {
			return summary, err
		}
		if report.TotalProcessed == 0 {
			break
		}
		summary.Batches++
		summary.Successful += report.Successful
		summary.Failed += report.Failed

		next, err := s.products.CountUnprocessed(ctx)
		if err != nil {
			return summary, fmt.Errorf("counting unprocessed products: %w", err)
		}
		if next == 0 {
			remaining = 0
			break
		}
		if next >= remaining {
			s.log.Error("resume making no progress, stopping",
				zap.Int64("remaining", next))
			summary.Stalled = true
			remaining = next
			break
		}
		remaining = next
	}
	summary.Remaining = remaining
	summary.TotalSeconds = time.Since(start).Seconds()

	s.log.Info("resume complete",
		zap.Int("batches", summary.Batches),
		zap.Int("successful", summary.Successful),
		zap.Int("failed", summary.Failed),
		zap.Int64("remaining", summary.Remaining))
	return summary, nil
}

// enrichOne runs the full pipeline for a single product: context lookup,
// prompt, generation, parse, validate, persist. Every failure comes back
// as an error value; nothing in here stops the batch.
func (s *EnhancementService) enrichOne(
	ctx context.Context,
	product domain.Product,
	rules []domain.Rule,
	ruleIDs []string,
	pass int,
	cache *contextCache,
) (domain.Enhancement, error) {
	classCtx := s.productContext(product, cache)

	prompt := BuildUserPrompt(product, classCtx, rules)

	response, err := s.generator.Generate(ctx, SystemPrompt, prompt)
	if err != nil {
		return domain.Enhancement{}, err
	}

	parsed, err := s.parser.ExtractStructured(response)
	if err != nil {
		return domain.Enhancement{}, err
	}
	enh, err := s.parser.Validate(parsed, product.ItemID)
	if err != nil {
		return domain.Enhancement{}, err
	}

	record := s.parser.Flatten(enh, ruleIDs, pass)
	if err := s.products.UpdateResult(ctx, product.ItemID, record); err != nil {
		return domain.Enhancement{}, fmt.Errorf("storing result: %w", err)
	}
	return enh, nil
}

// productContext resolves classification context through the batch cache.
// Products without a code get an empty result and no cache traffic.
func (s *EnhancementService) productContext(product domain.Product, cache *contextCache) domain.ContextResult {
	if product.HTSCode == "" {
		s.log.Warn("product has no classification code",
			zap.String("item", product.ItemID))
		return domain.ContextResult{}
	}
	return cache.resolve(product.HTSCode, s.hierarchy.Context)
}

// loadProducts picks the batch per pass semantics: pass 1 drains
// unprocessed items unless an explicit selection is given, later passes
// demand a selection.
func (s *EnhancementService) loadProducts(ctx context.Context, opts BatchOptions) ([]domain.Product, error) {
	switch {
	case opts.Pass == 1 && len(opts.ItemIDs) == 0:
		s.log.Info("loading unprocessed products", zap.Int("limit", opts.BatchSize))
		products, err := s.products.GetUnprocessed(ctx, opts.BatchSize)
		if err != nil {
			return nil, fmt.Errorf("loading unprocessed products: %w", err)
		}
		return products, nil

	case opts.Pass == 1:
		s.log.Info("loading selected products", zap.Int("selected", len(opts.ItemIDs)))
		products, err := s.products.GetByIDs(ctx, opts.ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("loading selected products: %w", err)
		}
		already := 0
		for _, p := range products {
			if p.Processed() {
				already++
			}
		}
		if already > 0 {
			s.log.Warn("selected products already processed, reprocessing",
				zap.Int("alreadyProcessed", already),
				zap.Int("selected", len(products)))
		}
		return products, nil

	case opts.Pass >= 2:
		if len(opts.ItemIDs) == 0 {
			s.log.Warn("reprocessing pass requires an item selection",
				zap.Int("pass", opts.Pass))
			return nil, nil
		}
		s.log.Info("loading products for reprocessing",
			zap.Int("pass", opts.Pass),
			zap.Int("selected", len(opts.ItemIDs)))
		products, err := s.products.GetByIDs(ctx, opts.ItemIDs)
		if err != nil {
			return nil, fmt.Errorf("loading selected products: %w", err)
		}
		return products, nil

	default:
		s.log.Error("invalid pass number", zap.Int("pass", opts.Pass))
		return nil, nil
	}
}

// loadRules returns nothing for pass 1. Later passes use the explicit
// selection when present and fall back to all active rules.
func (s *EnhancementService) loadRules(ctx context.Context, opts BatchOptions) ([]domain.Rule, error) {
	if opts.Pass <= 1 {
		return nil, nil
	}

	if len(opts.RuleIDs) > 0 {
		rules, err := s.rules.GetByIDs(ctx, opts.RuleIDs)
		if err != nil {
			return nil, fmt.Errorf("loading selected rules: %w", err)
		}
		s.log.Info("loaded selected rules",
			zap.Int("count", len(rules)),
			zap.Strings("ids", opts.RuleIDs))
		return rules, nil
	}

	rules, err := s.rules.GetActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading active rules: %w", err)
	}
	s.log.Info("loaded active rules", zap.Int("count", len(rules)))
	return rules, nil
}

func emptyReport(opts BatchOptions) domain.BatchReport {
	return domain.BatchReport{
		Pass:      opts.Pass,
		BatchSize: opts.BatchSize,
		ConfidenceDistribution: map[domain.ConfidenceLevel]int{
			domain.ConfidenceLow:    0,
			domain.ConfidenceMedium: 0,
			domain.ConfidenceHigh:   0,
		},
		Outcomes: []domain.ProductOutcome{},
	}
}

// contextCache is the lookup cache for one batch. It is created empty at
// batch start and discarded with the batch; nothing outlives the call
// that made it.
type contextCache struct {
	entries map[string]domain.ContextResult
	hits    int
	misses  int
}

func newContextCache() *contextCache {
	return &contextCache{entries: make(map[string]domain.ContextResult)}
}

// resolve returns the cached context for code or fetches and caches it.
func (c *contextCache) resolve(code string, lookup func(string) domain.ContextResult) domain.ContextResult {
	if ctx, ok := c.entries[code]; ok {
		c.hits++
		return ctx
	}
	c.misses++
	ctx := lookup(code)
	c.entries[code] = ctx
	return ctx
}

// hitRate is the percentage of lookups served from cache.
func (c *contextCache) hitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0
	}
	return float64(c.hits) / float64(total) * 100
}
