package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
	"github.com/tradelens/backend/internal/usecase"
)

// RuleManager is the rule CRUD surface exposed over the API.
type RuleManager interface {
	List(ctx context.Context) ([]domain.Rule, error)
	GetActive(ctx context.Context) ([]domain.Rule, error)
	Create(ctx context.Context, rule domain.Rule) error
	Update(ctx context.Context, rule domain.Rule) error
	Delete(ctx context.Context, ruleID string) error
}

// StatsProvider reports processing progress for the store behind the API.
type StatsProvider interface {
	Stats(ctx context.Context) (domain.StoreStats, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	enhancer  *usecase.EnhancementService
	hierarchy domain.HierarchyLookup
	stats     StatsProvider
	rules     RuleManager
	log       *zap.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(enhancer *usecase.EnhancementService, hierarchy domain.HierarchyLookup, stats StatsProvider, rules RuleManager, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		enhancer:  enhancer,
		hierarchy: hierarchy,
		stats:     stats,
		rules:     rules,
		log:       log,
	}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "tradelens-backend",
		"version": "1.0.0",
	})
}

type enhanceBatchRequest struct {
	BatchSize  int      `json:"batchSize"`
	PassNumber int      `json:"passNumber" binding:"required"`
	ItemIDs    []string `json:"itemIds"`
	RuleIDs    []string `json:"ruleIds"`
}

// EnhanceBatch runs one enrichment batch and returns its report
func (h *Handler) EnhanceBatch(c *gin.Context) {
	var req enhanceBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	report, err := h.enhancer.ProcessBatch(c.Request.Context(), usecase.BatchOptions{
		BatchSize: req.BatchSize,
		Pass:      req.PassNumber,
		ItemIDs:   req.ItemIDs,
		RuleIDs:   req.RuleIDs,
	})
	if err != nil {
		h.log.Error("batch enhancement failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "batch enhancement failed"})
		return
	}

	c.JSON(http.StatusOK, report)
}

type resumeRequest struct {
	BatchSize int `json:"batchSize"`
}

// ResumeEnhancement processes first-pass batches until no unprocessed
// products remain. An empty body uses the default batch size.
func (h *Handler) ResumeEnhancement(c *gin.Context) {
	var req resumeRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	summary, err := h.enhancer.ResumePassOne(c.Request.Context(), req.BatchSize)
	if err != nil {
		h.log.Error("resume failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "resume failed"})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HierarchyContext resolves the classification path for a code
func (h *Handler) HierarchyContext(c *gin.Context) {
	result := h.hierarchy.Context(c.Param("code"))
	if !result.Found {
		c.JSON(http.StatusNotFound, gin.H{"error": result.Error})
		return
	}
	c.JSON(http.StatusOK, result)
}

// HierarchyStatistics reports the shape of the loaded classification tree
func (h *Handler) HierarchyStatistics(c *gin.Context) {
	c.JSON(http.StatusOK, h.hierarchy.Statistics())
}

// ProductStatistics reports processing progress across the product store
func (h *Handler) ProductStatistics(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.log.Error("store statistics failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store statistics unavailable"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ListRules returns stored rules; ?active=true narrows to active ones
func (h *Handler) ListRules(c *gin.Context) {
	var (
		rules []domain.Rule
		err   error
	)
	if c.Query("active") == "true" {
		rules, err = h.rules.GetActive(c.Request.Context())
	} else {
		rules, err = h.rules.List(c.Request.Context())
	}
	if err != nil {
		h.log.Error("listing rules failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "listing rules failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rules": rules, "count": len(rules)})
}

type ruleCreateRequest struct {
	RuleID      string `json:"ruleId" binding:"required"`
	Name        string `json:"ruleName" binding:"required"`
	Content     string `json:"ruleContent" binding:"required"`
	Type        string `json:"ruleType" binding:"required"`
	Active      *bool  `json:"active"`
	Description string `json:"description"`
}

// CreateRule stores a new rule. Rules are active unless the request says
// otherwise.
func (h *Handler) CreateRule(c *gin.Context) {
	var req ruleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	active := true
	if req.Active != nil {
		active = *req.Active
	}
	rule := domain.Rule{
		RuleID:      req.RuleID,
		Name:        req.Name,
		Content:     req.Content,
		Type:        req.Type,
		Active:      active,
		Description: req.Description,
	}
	if err := h.rules.Create(c.Request.Context(), rule); err != nil {
		h.ruleError(c, err)
		return
	}
	c.JSON(http.StatusCreated, rule)
}

type ruleUpdateRequest struct {
	Name        string `json:"ruleName" binding:"required"`
	Content     string `json:"ruleContent" binding:"required"`
	Type        string `json:"ruleType" binding:"required"`
	Active      bool   `json:"active"`
	Description string `json:"description"`
}

// UpdateRule replaces the mutable fields of the rule named in the path
func (h *Handler) UpdateRule(c *gin.Context) {
	var req ruleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	rule := domain.Rule{
		RuleID:      c.Param("id"),
		Name:        req.Name,
		Content:     req.Content,
		Type:        req.Type,
		Active:      req.Active,
		Description: req.Description,
	}
	if err := h.rules.Update(c.Request.Context(), rule); err != nil {
		h.ruleError(c, err)
		return
	}
	c.JSON(http.StatusOK, rule)
}

// DeleteRule removes the rule named in the path
func (h *Handler) DeleteRule(c *gin.Context) {
	if err := h.rules.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.ruleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ruleError maps store sentinels onto HTTP statuses
func (h *Handler) ruleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrRuleNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrRuleExists):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrInvalidRule):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Error("rule operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "rule operation failed"})
	}
}
