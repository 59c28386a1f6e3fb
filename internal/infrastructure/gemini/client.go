package gemini

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/tradelens/backend/internal/domain"
)

// Config carries provider settings for the Gemini-backed generator.
type Config struct {
	APIKey            string
	Model             string
	Temperature       float64
	MaxOutputTokens   int
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client calls the Gemini API for text generation. Responses are requested
// as JSON; parsing stays with the caller. Each Generate call is a single
// attempt, retry belongs to the policy wrapping this client.
type Client struct {
	client      *genai.Client
	model       string
	temperature float32
	maxTokens   int32
	timeout     time.Duration
	limiter     *rate.Limiter
	log         *zap.Logger
}

// NewClient builds a Gemini client and verifies the configuration.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("%w: missing API key", domain.ErrProviderAuth)
	}
	if strings.TrimSpace(cfg.Model) == "" {
		return nil, errors.New("model name is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	inner, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  strings.TrimSpace(cfg.APIKey),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating provider client: %w", err)
	}

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		client:      inner,
		model:       strings.TrimSpace(cfg.Model),
		temperature: float32(cfg.Temperature),
		maxTokens:   int32(cfg.MaxOutputTokens),
		timeout:     timeout,
		limiter:     rate.NewLimiter(rate.Limit(rps), burst),
		log:         log,
	}, nil
}

// Generate sends one completion request and returns the raw response text.
func (c *Client) Generate(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temp := c.temperature
	genCfg := &genai.GenerateContentConfig{
		Temperature:      &temp,
		MaxOutputTokens:  c.maxTokens,
		ResponseMIMEType: "application/json",
	}
	if systemPrompt != "" {
		genCfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}}
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(callCtx, c.model, genai.Text(userPrompt), genCfg)
	if err != nil {
		classified := classifyErr(err)
		c.log.Warn("generation failed",
			zap.String("model", c.model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(classified))
		return "", classified
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty model response", domain.ErrResponseFormat)
	}

	c.log.Debug("generation complete",
		zap.String("model", c.model),
		zap.Duration("elapsed", time.Since(start)),
		zap.Int("chars", len(text)))
	return text, nil
}

// classifyErr maps provider failures onto the domain sentinels the retry
// policy understands. Unrecognized errors pass through unchanged and are
// treated as fatal.
func classifyErr(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return fmt.Errorf("%w: %v", domain.ErrProviderAuth, err)
		case apiErr.Code == 400:
			return fmt.Errorf("%w: %v", domain.ErrProviderBadRequest, err)
		case apiErr.Code == 429:
			return fmt.Errorf("%w: %v", domain.ErrProviderRateLimited, err)
		case apiErr.Code >= 500:
			return fmt.Errorf("%w: %v", domain.ErrProviderServer, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", domain.ErrProviderTimeout, err)
	}
	return err
}
