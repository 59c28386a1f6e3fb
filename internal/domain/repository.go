package domain

import "context"

// ProductStore defines the persistence interface the orchestrator works against.
type ProductStore interface {
	GetUnprocessed(ctx context.Context, limit int) ([]Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)
	UpdateResult(ctx context.Context, itemID string, res ProcessingResult) error
	CountUnprocessed(ctx context.Context) (int64, error)
}

// RuleStore defines read access to enrichment rules.
type RuleStore interface {
	GetActive(ctx context.Context) ([]Rule, error)
	GetByIDs(ctx context.Context, ids []string) ([]Rule, error)
}

// TextGenerator is a single-call completion provider. Implementations
// classify their failures into the provider error sentinels so callers can
// decide what is worth retrying.
type TextGenerator interface {
	Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// HierarchyLookup resolves classification codes against the loaded reference.
type HierarchyLookup interface {
	Context(code string) ContextResult
	Exists(code string) bool
	Statistics() HierarchyStatistics
}
