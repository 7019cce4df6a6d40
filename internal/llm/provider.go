package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"iclr-explorer/internal/gemini"
	"iclr-explorer/internal/metrics"
	"iclr-explorer/internal/openai"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ProviderType represents the type of LLM provider
type ProviderType string

const (
	ProviderOpenAI ProviderType = "openai"
	ProviderGemini ProviderType = "gemini"
)

// ErrUnavailable is returned without calling the provider while the breaker is open.
var ErrUnavailable = errors.New("labeler temporarily unavailable")

// ProviderConfig holds configuration for the labeler provider
type ProviderConfig struct {
	Type        ProviderType  `yaml:"type"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	ModelName   string        `yaml:"model_name"`
	Temperature float64       `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	// Rate limiting and circuit breaking
	RequestsPerMinute int           `yaml:"requests_per_minute"`
	FailureThreshold  uint32        `yaml:"failure_threshold"`
	OpenTimeout       time.Duration `yaml:"open_timeout"`
}

// ApplyDefaults fills unset fields.
func (c *ProviderConfig) ApplyDefaults() {
	if c.Type == "" {
		c.Type = ProviderOpenAI
	}
	if c.ModelName == "" {
		switch c.Type {
		case ProviderGemini:
			c.ModelName = "gemini-1.5-flash"
		default:
			c.ModelName = "gpt-4o-mini"
		}
	}
	if c.BaseURL == "" && c.Type == ProviderOpenAI {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Timeout == 0 {
		c.Timeout = 60 * time.Second
	}
	if c.RequestsPerMinute == 0 {
		c.RequestsPerMinute = 60
	}
	if c.FailureThreshold == 0 {
		c.FailureThreshold = 5
	}
	if c.OpenTimeout == 0 {
		c.OpenTimeout = 30 * time.Second
	}
}

// Validate checks the provider type.
func (c ProviderConfig) Validate() error {
	switch c.Type {
	case ProviderOpenAI, ProviderGemini:
		return nil
	default:
		return fmt.Errorf("unsupported labeler type %q", c.Type)
	}
}

// Provider labels a fully composed prompt with free text.
type Provider interface {
	Label(ctx context.Context, prompt string) (string, error)
	Close() error
	GetModelInfo() map[string]interface{}
}

// NewProvider builds the configured provider wrapped with rate limiting and
// a circuit breaker.
func NewProvider(ctx context.Context, cfg ProviderConfig, logger *zap.Logger) (*GuardedProvider, error) {
	cfg.ApplyDefaults()

	var (
		provider Provider
		err      error
	)

	switch cfg.Type {
	case ProviderOpenAI:
		provider, err = openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			ModelName:   cfg.ModelName,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger)
	case ProviderGemini:
		provider, err = gemini.NewClient(ctx, gemini.Config{
			APIKey:      cfg.APIKey,
			ModelName:   cfg.ModelName,
			Temperature: float32(cfg.Temperature),
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported labeler type %q", cfg.Type)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s provider: %w", cfg.Type, err)
	}

	return NewGuardedProvider(provider, cfg, logger), nil
}

// GuardedProvider wraps a provider with a token-bucket limiter and a circuit
// breaker. It never retries: a failed call is reported to the caller as is.
type GuardedProvider struct {
	provider Provider
	name     string
	model    string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[string]
	logger   *zap.Logger
}

// NewGuardedProvider wraps provider. RequestsPerMinute <= 0 disables limiting.
func NewGuardedProvider(provider Provider, cfg ProviderConfig, logger *zap.Logger) *GuardedProvider {
	name := string(cfg.Type)
	if name == "" {
		name = "labeler"
	}

	limit := rate.Inf
	if cfg.RequestsPerMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(cfg.RequestsPerMinute))
	}

	threshold := cfg.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	metrics.LabelerBreakerState.WithLabelValues(name).Set(0)

	breaker := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Labeler circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			open := 0.0
			if to == gobreaker.StateOpen {
				open = 1
			}
			metrics.LabelerBreakerState.WithLabelValues(name).Set(open)
		},
	})

	logger.Info("Labeler initialized",
		zap.String("provider", name),
		zap.String("model", cfg.ModelName),
		zap.Int("requests_per_minute", cfg.RequestsPerMinute),
		zap.Uint32("failure_threshold", threshold))

	return &GuardedProvider{
		provider: provider,
		name:     name,
		model:    cfg.ModelName,
		limiter:  rate.NewLimiter(limit, 1),
		breaker:  breaker,
		logger:   logger,
	}
}

// Label waits for a rate-limit token and calls the provider through the breaker.
func (p *GuardedProvider) Label(ctx context.Context, prompt string) (string, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait cancelled: %w", err)
	}

	start := time.Now()
	out, err := p.breaker.Execute(func() (string, error) {
		return p.provider.Label(ctx, prompt)
	})
	metrics.RecordLabelerCall(p.name, time.Since(start), err)

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		p.logger.Warn("Labeler call rejected", zap.String("provider", p.name), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

// Model is the configured model name recorded on stored predictions.
func (p *GuardedProvider) Model() string {
	return p.model
}

// Close closes the wrapped provider.
func (p *GuardedProvider) Close() error {
	return p.provider.Close()
}

// GetModelInfo returns the wrapped provider's info plus the breaker state.
func (p *GuardedProvider) GetModelInfo() map[string]interface{} {
	info := p.provider.GetModelInfo()
	info["breaker_state"] = p.breaker.State().String()
	return info
}
