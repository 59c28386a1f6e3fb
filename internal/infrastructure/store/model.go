package store

import (
	"time"

	"gorm.io/datatypes"

	"github.com/tradelens/backend/internal/domain"
)

// productRow mirrors the immutable intake table. Column names follow the
// feed's snake_case headers so the SQLite file stays interchangeable with the
// ingestion tooling.
type productRow struct {
	ItemID           string `gorm:"column:item_id;primaryKey;type:varchar(64)"`
	ItemDescription  string `gorm:"column:item_description;not null"`
	ProductGroup     string `gorm:"column:product_group;index"`
	ProductGroupCode string `gorm:"column:product_group_code"`
	ProductGroupDesc string `gorm:"column:product_group_description"`
	MaterialClass    string `gorm:"column:material_class;index"`
	MaterialDetail   string `gorm:"column:material_detail"`
	ManfClass        string `gorm:"column:manf_class"`
	SupplierID       string `gorm:"column:supplier_id"`
	SupplierName     string `gorm:"column:supplier_name"`
	CountryOfOrigin  string `gorm:"column:country_of_origin"`
	ImportType       string `gorm:"column:import_type"`
	PortOfDelivery   string `gorm:"column:port_of_delivery"`
	FinalHTS         string `gorm:"column:final_hts;index"`
	HTSDescription   string `gorm:"column:hts_description"`
}

func (productRow) TableName() string { return "products" }

// processingRow holds the mutable enrichment output, one row per product,
// replaced wholesale on every pass.
type processingRow struct {
	ItemID              string         `gorm:"column:item_id;primaryKey;type:varchar(64)"`
	EnhancedDescription string         `gorm:"column:enhanced_description;not null"`
	ConfidenceScore     string         `gorm:"column:confidence_score"`
	ConfidenceLevel     string         `gorm:"column:confidence_level;index"`
	ExtractedCustomer   *string        `gorm:"column:extracted_customer_name"`
	ExtractedDimensions *string        `gorm:"column:extracted_dimensions"`
	ExtractedProduct    string         `gorm:"column:extracted_product"`
	RulesApplied        datatypes.JSON `gorm:"column:rules_applied"`
	LastProcessedPass   string         `gorm:"column:last_processed_pass"`
	LastProcessedAt     time.Time      `gorm:"column:last_processed_at"`
}

func (processingRow) TableName() string { return "processing_results" }

type ruleRow struct {
	RuleID      string    `gorm:"column:rule_id;primaryKey;type:varchar(16)"`
	RuleName    string    `gorm:"column:rule_name;not null"`
	RuleContent string    `gorm:"column:rule_content;not null"`
	RuleType    string    `gorm:"column:rule_type;not null"`
	Active      bool      `gorm:"column:active;index"`
	Description string    `gorm:"column:description"`
	CreatedAt   time.Time `gorm:"column:created_at"`
}

func (ruleRow) TableName() string { return "rules" }

func newProductRow(p domain.Product) productRow {
	return productRow{
		ItemID:           p.ItemID,
		ItemDescription:  p.Description,
		ProductGroup:     p.ProductGroup,
		ProductGroupCode: p.ProductGroupCode,
		ProductGroupDesc: p.ProductGroupDesc,
		MaterialClass:    p.MaterialClass,
		MaterialDetail:   p.MaterialDetail,
		ManfClass:        p.ManfClass,
		SupplierID:       p.SupplierID,
		SupplierName:     p.SupplierName,
		CountryOfOrigin:  p.CountryOfOrigin,
		ImportType:       p.ImportType,
		PortOfDelivery:   p.PortOfDelivery,
		FinalHTS:         p.HTSCode,
		HTSDescription:   p.HTSDescription,
	}
}

func (r productRow) toDomain() domain.Product {
	return domain.Product{
		ItemID:           r.ItemID,
		Description:      r.ItemDescription,
		ProductGroup:     r.ProductGroup,
		ProductGroupCode: r.ProductGroupCode,
		ProductGroupDesc: r.ProductGroupDesc,
		MaterialClass:    r.MaterialClass,
		MaterialDetail:   r.MaterialDetail,
		ManfClass:        r.ManfClass,
		SupplierID:       r.SupplierID,
		SupplierName:     r.SupplierName,
		CountryOfOrigin:  r.CountryOfOrigin,
		ImportType:       r.ImportType,
		PortOfDelivery:   r.PortOfDelivery,
		HTSCode:          r.FinalHTS,
		HTSDescription:   r.HTSDescription,
	}
}

func newProcessingRow(itemID string, res domain.ProcessingResult) processingRow {
	rules := res.RulesApplied
	if rules == "" {
		rules = "[]"
	}
	return processingRow{
		ItemID:              itemID,
		EnhancedDescription: res.EnhancedDescription,
		ConfidenceScore:     res.ConfidenceScore,
		ConfidenceLevel:     string(res.ConfidenceLevel),
		ExtractedCustomer:   res.ExtractedCustomer,
		ExtractedDimensions: res.ExtractedDimensions,
		ExtractedProduct:    res.ExtractedProduct,
		RulesApplied:        datatypes.JSON(rules),
		LastProcessedPass:   res.Pass,
		LastProcessedAt:     res.ProcessedAt,
	}
}

func (r processingRow) toDomain() domain.ProcessingResult {
	return domain.ProcessingResult{
		EnhancedDescription: r.EnhancedDescription,
		ConfidenceScore:     r.ConfidenceScore,
		ConfidenceLevel:     domain.ConfidenceLevel(r.ConfidenceLevel),
		ExtractedProduct:    r.ExtractedProduct,
		ExtractedCustomer:   r.ExtractedCustomer,
		ExtractedDimensions: r.ExtractedDimensions,
		RulesApplied:        string(r.RulesApplied),
		Pass:                r.LastProcessedPass,
		ProcessedAt:         r.LastProcessedAt,
	}
}

func newRuleRow(rule domain.Rule) ruleRow {
	return ruleRow{
		RuleID:      rule.RuleID,
		RuleName:    rule.Name,
		RuleContent: rule.Content,
		RuleType:    rule.Type,
		Active:      rule.Active,
		Description: rule.Description,
		CreatedAt:   rule.CreatedAt,
	}
}

func (r ruleRow) toDomain() domain.Rule {
	return domain.Rule{
		RuleID:      r.RuleID,
		Name:        r.RuleName,
		Content:     r.RuleContent,
		Type:        r.RuleType,
		Active:      r.Active,
		CreatedAt:   r.CreatedAt,
		Description: r.Description,
	}
}
