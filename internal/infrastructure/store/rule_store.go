package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tradelens/backend/internal/domain"
)

// RuleStore persists enrichment rules.
type RuleStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewRuleStore wraps an open database handle.
func NewRuleStore(db *gorm.DB, log *zap.Logger) *RuleStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleStore{db: db, log: log}
}

// GetActive returns the active rules in rule id order.
func (s *RuleStore) GetActive(ctx context.Context) ([]domain.Rule, error) {
	var rows []ruleRow
	err := s.db.WithContext(ctx).Where("active = ?", true).Order("rule_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query active rules: %w", err)
	}
	return toRules(rows), nil
}

// GetByIDs returns the requested rules in rule id order, active or not.
// Unknown ids are silently dropped.
func (s *RuleStore) GetByIDs(ctx context.Context, ids []string) ([]domain.Rule, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []ruleRow
	err := s.db.WithContext(ctx).Where("rule_id IN ?", ids).Order("rule_id").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	return toRules(rows), nil
}

// List returns every stored rule in rule id order.
func (s *RuleStore) List(ctx context.Context) ([]domain.Rule, error) {
	var rows []ruleRow
	if err := s.db.WithContext(ctx).Order("rule_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return toRules(rows), nil
}

// Create stores a new rule. The id must not already be taken.
func (s *RuleStore) Create(ctx context.Context, rule domain.Rule) error {
	if problems := rule.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRule, strings.Join(problems, "; "))
	}
	var count int64
	if err := s.db.WithContext(ctx).Model(&ruleRow{}).Where("rule_id = ?", rule.RuleID).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to verify rule: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("%w: %s", domain.ErrRuleExists, rule.RuleID)
	}

	row := newRuleRow(rule)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	s.log.Info("rule created", zap.String("ruleId", rule.RuleID), zap.String("type", rule.Type))
	return nil
}

// Update rewrites an existing rule's mutable fields.
func (s *RuleStore) Update(ctx context.Context, rule domain.Rule) error {
	if problems := rule.Validate(); len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrInvalidRule, strings.Join(problems, "; "))
	}
	res := s.db.WithContext(ctx).Model(&ruleRow{}).Where("rule_id = ?", rule.RuleID).
		Updates(map[string]interface{}{
			"rule_name":    rule.Name,
			"rule_content": rule.Content,
			"rule_type":    rule.Type,
			"active":       rule.Active,
			"description":  rule.Description,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to update rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRuleNotFound, rule.RuleID)
	}
	return nil
}

// Delete removes a rule by id.
func (s *RuleStore) Delete(ctx context.Context, ruleID string) error {
	res := s.db.WithContext(ctx).Where("rule_id = ?", ruleID).Delete(&ruleRow{})
	if res.Error != nil {
		return fmt.Errorf("failed to delete rule: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: %s", domain.ErrRuleNotFound, ruleID)
	}
	return nil
}

func toRules(rows []ruleRow) []domain.Rule {
	out := make([]domain.Rule, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out
}
