package usecase

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/tradelens/backend/internal/domain"
)

var (
	// fencedJSONPattern matches a markdown-fenced JSON block.
	fencedJSONPattern = regexp.MustCompile("(?s)```json\\s*(\\{.*?\\})\\s*```")

	// embeddedJSONPattern matches the first object literal in free text,
	// tolerating one level of nesting.
	embeddedJSONPattern = regexp.MustCompile(`\{[^{}]*(?:\{[^{}]*\}[^{}]*)*\}`)
)

// requiredResponseFields must all be present at the top level of a model
// response.
var requiredResponseFields = []string{
	"enhanced_description",
	"confidence_score",
	"confidence_level",
	"extracted_features",
}

// ResponseParser turns raw model output into validated enrichment results.
type ResponseParser struct {
	log *zap.Logger
}

// NewResponseParser returns a parser that reports normalization warnings to log.
func NewResponseParser(log *zap.Logger) *ResponseParser {
	if log == nil {
		log = zap.NewNop()
	}
	return &ResponseParser{log: log}
}

// ExtractStructured recovers a JSON object from model output. Models answer
// with pure JSON, a markdown-fenced block, or prose around an object, so
// three strategies run in order of strictness.
func (p *ResponseParser) ExtractStructured(text string) (map[string]any, error) {
	var direct map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &direct); err == nil && direct != nil {
		return direct, nil
	}

	if m := fencedJSONPattern.FindStringSubmatch(text); m != nil {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(m[1]), &parsed); err == nil && parsed != nil {
			p.log.Debug("extracted JSON from markdown block")
			return parsed, nil
		}
	}

	if m := embeddedJSONPattern.FindString(text); m != "" {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(m), &parsed); err == nil && parsed != nil {
			p.log.Debug("extracted JSON from surrounding text")
			return parsed, nil
		}
	}

	return nil, domain.ErrResponseFormat
}

// Validate checks a parsed response against the schema the system prompt
// demands and normalizes it into an Enhancement.
//
// Hard failures: missing required fields, empty description, unparseable
// score, missing feature product. Soft repairs, logged as warnings:
// out-of-range scores clamp to [0, 1] and unknown confidence levels default
// to Medium. Empty-like optional features normalize to absent.
func (p *ResponseParser) Validate(parsed map[string]any, itemID string) (domain.Enhancement, error) {
	var errs []string

	for _, field := range requiredResponseFields {
		if _, present := parsed[field]; !present {
			errs = append(errs, "missing required field: "+field)
		}
	}
	if len(errs) > 0 {
		return domain.Enhancement{}, fmt.Errorf("%w: %s: %s",
			domain.ErrResponseSchema, itemID, strings.Join(errs, "; "))
	}

	var enh domain.Enhancement
	var warnings []string

	desc, ok := parsed["enhanced_description"].(string)
	if !ok || strings.TrimSpace(desc) == "" {
		errs = append(errs, "enhanced_description cannot be empty")
	}
	enh.EnhancedDescription = desc

	score, err := scoreValue(parsed["confidence_score"])
	if err != nil {
		errs = append(errs, fmt.Sprintf("invalid confidence_score: %v", parsed["confidence_score"]))
	} else {
		if score < 0 || score > 1 {
			warnings = append(warnings, fmt.Sprintf("confidence score %v out of range, clamping to [0, 1]", score))
			score = math.Max(0, math.Min(1, score))
		}
		enh.ConfidenceScore = strconv.FormatFloat(score, 'f', 2, 64)
	}

	level, _ := parsed["confidence_level"].(string)
	lvl := domain.ConfidenceLevel(level)
	if !lvl.Valid() {
		warnings = append(warnings, fmt.Sprintf("invalid confidence_level '%v', defaulting to Medium", parsed["confidence_level"]))
		lvl = domain.ConfidenceMedium
	}
	enh.ConfidenceLevel = lvl

	features, ok := parsed["extracted_features"].(map[string]any)
	if !ok {
		errs = append(errs, "extracted_features must be an object")
	} else {
		product, _ := features["product"].(string)
		if strings.TrimSpace(product) == "" {
			errs = append(errs, "extracted_features.product is required and cannot be empty")
		}
		enh.Features = domain.ExtractedFeatures{
			Product:      product,
			CustomerName: optionalFeature(features, "customer_name"),
			Dimensions:   optionalFeature(features, "dimensions"),
		}
	}

	if len(errs) > 0 {
		return domain.Enhancement{}, fmt.Errorf("%w: %s: %s",
			domain.ErrResponseSchema, itemID, strings.Join(errs, "; "))
	}

	for _, w := range warnings {
		p.log.Warn("response normalized",
			zap.String("item", itemID),
			zap.String("detail", w))
	}
	return enh, nil
}

// Flatten shapes a validated enhancement into the persistence record:
// applied rules become a JSON id array and the pass number a string, the
// way the processing table stores them.
func (p *ResponseParser) Flatten(enh domain.Enhancement, ruleIDs []string, pass int) domain.ProcessingResult {
	if ruleIDs == nil {
		ruleIDs = []string{}
	}
	applied, _ := json.Marshal(ruleIDs)

	return domain.ProcessingResult{
		EnhancedDescription: enh.EnhancedDescription,
		ConfidenceScore:     enh.ConfidenceScore,
		ConfidenceLevel:     enh.ConfidenceLevel,
		ExtractedProduct:    enh.Features.Product,
		ExtractedCustomer:   enh.Features.CustomerName,
		ExtractedDimensions: enh.Features.Dimensions,
		RulesApplied:        string(applied),
		Pass:                strconv.Itoa(pass),
	}
}

// FallbackConfidence scores an enhancement by what was extracted rather
// than by what the model reported. Weighted sum over 10: product and
// dimensions weigh most, then customer name, actual enlargement of the
// description, any feature at all, and available classification context.
func (p *ResponseParser) FallbackConfidence(enh domain.Enhancement, originalDescription string, ctx domain.ContextResult) (string, domain.ConfidenceLevel) {
	score := 0.0

	if enh.Features.Product != "" {
		score += 3.0
	}
	if enh.Features.Dimensions != nil {
		score += 3.0
	}
	if enh.Features.CustomerName != nil {
		score += 1.5
	}
	if len(enh.EnhancedDescription) > len(originalDescription) {
		score += 1.5
	}
	if enh.Features.Product != "" || enh.Features.CustomerName != nil || enh.Features.Dimensions != nil {
		score += 1.0
	}
	if ctx.Found && len(ctx.Path) > 0 {
		score += 0.5
		if len(ctx.Path) >= 3 {
			score += 0.5
		}
	}

	confidence := math.Min(score/10, 1.0)
	level := domain.ConfidenceLow
	switch {
	case confidence >= 0.7:
		level = domain.ConfidenceHigh
	case confidence >= 0.4:
		level = domain.ConfidenceMedium
	}
	return strconv.FormatFloat(confidence, 'f', 2, 64), level
}

func scoreValue(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case string:
		return strconv.ParseFloat(strings.TrimSpace(n), 64)
	default:
		return 0, fmt.Errorf("confidence score is %T, not numeric", v)
	}
}

// optionalFeature reads a nullable feature field. Empty strings, the
// literal "null", and non-string values all normalize to absent.
func optionalFeature(features map[string]any, key string) *string {
	s, ok := features[key].(string)
	if !ok || s == "" || s == "null" {
		return nil
	}
	return &s
}
