package domain

import (
	"regexp"
	"strings"
	"time"
)

// Rule types accepted by validation.
const (
	RuleTypeMaterial  = "material"
	RuleTypeDimension = "dimension"
	RuleTypeCustomer  = "customer"
	RuleTypeProduct   = "product"
	RuleTypeGeneral   = "general"
)

var ruleIDPattern = regexp.MustCompile(`^R\d{3,}$`)

// Rule is one enrichment instruction injected into prompts when active.
type Rule struct {
	RuleID      string    `json:"ruleId" binding:"required"`
	Name        string    `json:"ruleName" binding:"required"`
	Content     string    `json:"ruleContent" binding:"required"`
	Type        string    `json:"ruleType" binding:"required"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"createdAt,omitempty"`
	Description string    `json:"description,omitempty"`
}

// Validate checks the id pattern, the type, and that name and content are
// non-empty. Returns a list of problems, empty when the rule is well formed.
func (r Rule) Validate() []string {
	var problems []string
	if !ruleIDPattern.MatchString(r.RuleID) {
		problems = append(problems, "rule id must match R### pattern")
	}
	switch r.Type {
	case RuleTypeMaterial, RuleTypeDimension, RuleTypeCustomer, RuleTypeProduct, RuleTypeGeneral:
	default:
		problems = append(problems, "unknown rule type: "+r.Type)
	}
	if strings.TrimSpace(r.Name) == "" {
		problems = append(problems, "rule name cannot be empty")
	}
	if strings.TrimSpace(r.Content) == "" {
		problems = append(problems, "rule content cannot be empty")
	}
	return problems
}
