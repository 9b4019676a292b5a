// Package generate turns a natural-language banking question into candidate
// SQL through an external text-generation service.
package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrEmptySQL means the service answered without a usable SELECT statement.
var ErrEmptySQL = errors.New("no SELECT statement in response")

// Generator produces candidate query text for a prompt.
type Generator interface {
	Generate(ctx context.Context, p Prompt) (string, error)
	Name() string
}

// ServiceError is a failure reported by the generation service. Only its
// message text is inspected by callers.
type ServiceError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *ServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *ServiceError) Unwrap() error { return e.Err }

var quotaSignatures = []string{
	"quota", "429", "resourceexhausted", "resource_exhausted",
	"rate limit", "rate_limit", "too many requests",
}

// IsQuota reports whether err's message indicates an exhausted quota or a
// rate limit.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, sig := range quotaSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

// Provider names accepted by New.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderNone      = "none"
)

// Providers lists the accepted provider names.
var Providers = []string{ProviderOpenAI, ProviderAnthropic, ProviderNone}

// Options configures a provider.
type Options struct {
	Provider    string
	Model       string
	BaseURL     string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// New returns the generator named by opts.Provider.
func New(opts Options) (Generator, error) {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 512
	}
	switch opts.Provider {
	case ProviderOpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai: API key is not set")
		}
		if opts.Model == "" {
			opts.Model = "gpt-4o-mini"
		}
		return NewOpenAI(opts), nil
	case ProviderAnthropic:
		if opts.APIKey == "" {
			return nil, errors.New("anthropic: API key is not set")
		}
		if opts.Model == "" {
			opts.Model = "claude-3-5-haiku-latest"
		}
		return NewAnthropic(opts), nil
	case ProviderNone, "":
		return Disabled{}, nil
	default:
		return nil, fmt.Errorf("unsupported generator provider: %s", opts.Provider)
	}
}

// Disabled always fails with a quota error, so every request is served from
// the fallback catalog.
type Disabled struct{}

func (Disabled) Name() string { return ProviderNone }

func (Disabled) Generate(context.Context, Prompt) (string, error) {
	return "", &ServiceError{Provider: ProviderNone, Message: "generator disabled, quota unavailable"}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
