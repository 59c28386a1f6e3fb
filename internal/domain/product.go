package domain

import "time"

// Product is one intake record awaiting enrichment. The intake columns are
// immutable after ingestion; enrichment output lives in ProcessingResult.
type Product struct {
	ItemID           string `json:"itemId"`
	Description      string `json:"itemDescription"`
	ProductGroup     string `json:"productGroup,omitempty"`
	ProductGroupCode string `json:"productGroupCode,omitempty"`
	ProductGroupDesc string `json:"productGroupDescription,omitempty"`
	MaterialClass    string `json:"materialClass,omitempty"`
	MaterialDetail   string `json:"materialDetail,omitempty"`
	ManfClass        string `json:"manfClass,omitempty"`
	SupplierID       string `json:"supplierId,omitempty"`
	SupplierName     string `json:"supplierName,omitempty"`
	CountryOfOrigin  string `json:"countryOfOrigin,omitempty"`
	ImportType       string `json:"importType,omitempty"`
	PortOfDelivery   string `json:"portOfDelivery,omitempty"`
	HTSCode          string `json:"htsCode"`
	HTSDescription   string `json:"htsDescription,omitempty"`

	// Enhancement is nil until the product has been processed.
	Enhancement *ProcessingResult `json:"enhancement,omitempty"`
}

// Processed reports whether an enrichment result has been stored for the product.
func (p Product) Processed() bool {
	return p.Enhancement != nil && p.Enhancement.EnhancedDescription != ""
}

// ProcessingResult is the persisted outcome of one enrichment. Optional
// extracted fields are nil when the model reported nothing for them.
type ProcessingResult struct {
	EnhancedDescription string          `json:"enhancedDescription"`
	ConfidenceScore     string          `json:"confidenceScore"`
	ConfidenceLevel     ConfidenceLevel `json:"confidenceLevel"`
	ExtractedProduct    string          `json:"extractedProduct"`
	ExtractedCustomer   *string         `json:"extractedCustomerName,omitempty"`
	ExtractedDimensions *string         `json:"extractedDimensions,omitempty"`
	RulesApplied        string          `json:"rulesApplied"` // JSON array of rule ids
	Pass                string          `json:"pass"`
	ProcessedAt         time.Time       `json:"processedAt,omitempty"`
}

// StoreStats summarizes processing progress across the product store.
type StoreStats struct {
	TotalProducts          int64                     `json:"totalProducts"`
	Processed              int64                     `json:"processed"`
	Unprocessed            int64                     `json:"unprocessed"`
	ConfidenceDistribution map[ConfidenceLevel]int64 `json:"confidenceDistribution"`
}

// ImportReport summarizes one CSV ingestion run.
type ImportReport struct {
	RowsRead      int      `json:"rowsRead"`
	Inserted      int      `json:"inserted"`
	Skipped       int      `json:"skipped"`
	InvalidSample []string `json:"invalidSample,omitempty"`
}
