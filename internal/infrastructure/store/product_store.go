package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tradelens/backend/internal/domain"
)

// A product counts as unprocessed until a result row with a non-empty
// enhanced description exists for it.
const (
	processingJoin       = "LEFT JOIN processing_results pr ON pr.item_id = products.item_id"
	unprocessedPredicate = "pr.item_id IS NULL OR pr.enhanced_description IS NULL OR pr.enhanced_description = ''"
	insertBatchSize      = 200
)

// ProductStore persists intake products and their enrichment results in
// SQLite. Intake rows are written once at ingestion and never updated;
// enrichment output goes to a separate results table keyed by the same
// item id.
type ProductStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewProductStore wraps an open database handle.
func NewProductStore(db *gorm.DB, log *zap.Logger) *ProductStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProductStore{db: db, log: log}
}

// GetUnprocessed returns up to limit products without a stored enrichment
// result, in item id order. A non-positive limit returns all of them.
func (s *ProductStore) GetUnprocessed(ctx context.Context, limit int) ([]domain.Product, error) {
	var rows []productRow
	q := s.db.WithContext(ctx).
		Joins(processingJoin).
		Where(unprocessedPredicate).
		Order("products.item_id")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query unprocessed products: %w", err)
	}
	out := make([]domain.Product, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// GetByIDs returns the requested products in the order asked for, with any
// stored enrichment attached. Unknown ids are logged and dropped from the
// result rather than failing the lookup.
func (s *ProductStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []productRow
	if err := s.db.WithContext(ctx).Where("item_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	var results []processingRow
	if err := s.db.WithContext(ctx).Where("item_id IN ?", ids).Find(&results).Error; err != nil {
		return nil, fmt.Errorf("failed to query processing results: %w", err)
	}

	byID := make(map[string]productRow, len(rows))
	for _, r := range rows {
		byID[r.ItemID] = r
	}
	resultByID := make(map[string]processingRow, len(results))
	for _, r := range results {
		resultByID[r.ItemID] = r
	}

	out := make([]domain.Product, 0, len(rows))
	for _, id := range ids {
		row, ok := byID[id]
		if !ok {
			s.log.Warn("product id not found", zap.String("itemId", id))
			continue
		}
		p := row.toDomain()
		if res, ok := resultByID[id]; ok {
			enh := res.toDomain()
			p.Enhancement = &enh
		}
		out = append(out, p)
	}
	return out, nil
}

// UpdateResult stores the enrichment result for itemID, replacing any
// earlier pass. The product must already exist in the intake table.
func (s *ProductStore) UpdateResult(ctx context.Context, itemID string, res domain.ProcessingResult) error {
	var count int64
	if err := s.db.WithContext(ctx).Model(&productRow{}).Where("item_id = ?", itemID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to verify product: %w", err)
	}
	if count == 0 {
		return fmt.Errorf("%w: %s", domain.ErrProductNotFound, itemID)
	}

	row := newProcessingRow(itemID, res)
	if row.LastProcessedAt.IsZero() {
		row.LastProcessedAt = time.Now().UTC()
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "item_id"}},
		UpdateAll: true,
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("failed to store processing result: %w", err)
	}
	return nil
}

// CountUnprocessed reports how many products still lack an enrichment result.
func (s *ProductStore) CountUnprocessed(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&productRow{}).
		Joins(processingJoin).
		Where(unprocessedPredicate).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count unprocessed products: %w", err)
	}
	return count, nil
}

// Insert adds intake products, skipping ids already present, and returns how
// many rows were actually written.
func (s *ProductStore) Insert(ctx context.Context, products []domain.Product) (int, error) {
	if len(products) == 0 {
		return 0, nil
	}
	rows := make([]productRow, 0, len(products))
	for _, p := range products {
		rows = append(rows, newProductRow(p))
	}
	res := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		CreateInBatches(rows, insertBatchSize)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to insert products: %w", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Stats summarizes processing progress across the store.
func (s *ProductStore) Stats(ctx context.Context) (domain.StoreStats, error) {
	stats := domain.StoreStats{
		ConfidenceDistribution: map[domain.ConfidenceLevel]int64{
			domain.ConfidenceLow:    0,
			domain.ConfidenceMedium: 0,
			domain.ConfidenceHigh:   0,
		},
	}
	if err := s.db.WithContext(ctx).Model(&productRow{}).Count(&stats.TotalProducts).Error; err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to count products: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(&processingRow{}).Count(&stats.Processed).Error; err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to count processed products: %w", err)
	}
	stats.Unprocessed = stats.TotalProducts - stats.Processed

	type levelCount struct {
		ConfidenceLevel string
		N               int64
	}
	var levels []levelCount
	err := s.db.WithContext(ctx).Model(&processingRow{}).
		Select("confidence_level, COUNT(*) AS n").
		Group("confidence_level").
		Scan(&levels).Error
	if err != nil {
		return domain.StoreStats{}, fmt.Errorf("failed to aggregate confidence levels: %w", err)
	}
	for _, lc := range levels {
		stats.ConfidenceDistribution[domain.ConfidenceLevel(lc.ConfidenceLevel)] += lc.N
	}
	return stats, nil
}
