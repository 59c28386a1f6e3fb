package domain

// ConfidenceLevel buckets a model-reported confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "Low"
	ConfidenceMedium ConfidenceLevel = "Medium"
	ConfidenceHigh   ConfidenceLevel = "High"
)

// Valid reports whether the level is one of the three known buckets.
func (l ConfidenceLevel) Valid() bool {
	return l == ConfidenceLow || l == ConfidenceMedium || l == ConfidenceHigh
}

// ExtractedFeatures holds the structured attributes a model pulled out of a
// product description. Product is required; the rest are nil when absent.
type ExtractedFeatures struct {
	Product      string  `json:"product"`
	CustomerName *string `json:"customer_name,omitempty"`
	Dimensions   *string `json:"dimensions,omitempty"`
}

// Enhancement is a validated model response for one product.
type Enhancement struct {
	EnhancedDescription string            `json:"enhancedDescription"`
	ConfidenceScore     string            `json:"confidenceScore"` // normalized "0.00".."1.00"
	ConfidenceLevel     ConfidenceLevel   `json:"confidenceLevel"`
	Features            ExtractedFeatures `json:"extractedFeatures"`
}

// ProductOutcome records how a single item fared inside a batch.
type ProductOutcome struct {
	ItemID          string          `json:"itemId"`
	Success         bool            `json:"success"`
	ConfidenceScore string          `json:"confidenceScore,omitempty"`
	ConfidenceLevel ConfidenceLevel `json:"confidenceLevel,omitempty"`
	Error           string          `json:"error,omitempty"`
}

// BatchReport summarizes one orchestrator invocation.
type BatchReport struct {
	Pass                   int                     `json:"pass"`
	BatchSize              int                     `json:"batchSize"`
	TotalProcessed         int                     `json:"totalProcessed"`
	Successful             int                     `json:"successful"`
	Failed                 int                     `json:"failed"`
	SuccessRate            float64                 `json:"successRate"`
	ConfidenceDistribution map[ConfidenceLevel]int `json:"confidenceDistribution"`
	ProcessingSeconds      float64                 `json:"processingTimeSeconds"`
	AvgSecondsPerProduct   float64                 `json:"avgTimePerProductSeconds"`
	Outcomes               []ProductOutcome        `json:"outcomes"`
}

// ResumeSummary aggregates the batches run by a resume loop.
type ResumeSummary struct {
	Batches      int     `json:"batches"`
	Successful   int     `json:"successful"`
	Failed       int     `json:"failed"`
	Remaining    int64   `json:"remaining"`
	TotalSeconds float64 `json:"totalTimeSeconds"`
	Stalled      bool    `json:"stalled,omitempty"`
}
