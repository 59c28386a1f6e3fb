package domain

import "errors"

var (
	// ErrProviderTimeout is returned when a provider call exceeds its deadline
	ErrProviderTimeout = errors.New("provider request timed out")

	// ErrProviderRateLimited is returned when the provider rejects a call with a rate limit
	ErrProviderRateLimited = errors.New("provider rate limit exceeded")

	// ErrProviderServer is returned for provider-side 5xx failures
	ErrProviderServer = errors.New("provider server error")

	// ErrProviderAuth is returned when the provider rejects our credentials
	ErrProviderAuth = errors.New("provider authentication failed")

	// ErrProviderBadRequest is returned when the provider rejects the request itself
	ErrProviderBadRequest = errors.New("provider rejected request")

	// ErrResponseFormat is returned when no JSON object can be recovered from a model response
	ErrResponseFormat = errors.New("no JSON object found in model response")

	// ErrResponseSchema is returned when a parsed model response fails validation
	ErrResponseSchema = errors.New("model response failed validation")

	// ErrReferenceFile is returned when the classification reference file cannot be read
	ErrReferenceFile = errors.New("reference file unavailable")

	// ErrReferenceFormat is returned when the classification reference data is malformed
	ErrReferenceFormat = errors.New("reference data malformed")

	// ErrDuplicateCode is returned when the reference file repeats a classification code
	ErrDuplicateCode = errors.New("duplicate classification code")

	// ErrProductNotFound is returned when a product id has no row in the store
	ErrProductNotFound = errors.New("product not found")

	// ErrRuleNotFound is returned when a rule id has no row in the store
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when creating a rule whose id is already taken
	ErrRuleExists = errors.New("rule already exists")

	// ErrInvalidRule is returned when a rule fails validation
	ErrInvalidRule = errors.New("rule failed validation")
)
