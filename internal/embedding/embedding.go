package embedding

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"golang.org/x/time/rate"
)

var (
	ErrEmptyInput          = errors.New("embedding input is empty")
	ErrProviderUnavailable = errors.New("embedding provider unavailable")
	ErrDimensionMismatch   = errors.New("embedding dimension mismatch")
)

// DefaultMaxInputChars is the longest input sent to a provider.
const DefaultMaxInputChars = 8000

// Provider is a single embedding backend. Implementations only talk to their
// API; input validation and dimension checks live in Service.
type Provider interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service wraps the Provider chosen at startup. It rejects blank input without
// a network call, truncates long input, throttles requests and guarantees
// every returned vector has the configured dimension.
type Service struct {
	provider  Provider
	dimension int
	maxInput  int
	limiter   *rate.Limiter
	logger    *slog.Logger
}

type Option func(*Service)

// WithDimension overrides the provider's advertised dimension.
func WithDimension(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.dimension = n
		}
	}
}

func WithMaxInputChars(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxInput = n
		}
	}
}

// WithRateLimit caps provider calls per second. Zero or negative disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(s *Service) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewService(p Provider, opts ...Option) *Service {
	s := &Service{
		provider:  p,
		dimension: p.Dimension(),
		maxInput:  DefaultMaxInputChars,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Name() string { return s.provider.Name() }

func (s *Service) Dimension() int { return s.dimension }

func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyInput
	}

	if n := utf8.RuneCountInString(text); n > s.maxInput {
		text = truncateRunes(text, s.maxInput)
		s.logger.WarnContext(ctx, "embedding input truncated",
			"provider", s.provider.Name(), "original_chars", n, "max_chars", s.maxInput)
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%w: rate limiter: %v", ErrProviderUnavailable, err)
		}
	}

	vec, err := s.provider.Embed(ctx, text)
	if err != nil {
		if errors.Is(err, ErrProviderUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, s.provider.Name(), err)
	}

	if len(vec) != s.dimension {
		return nil, fmt.Errorf("%w: %s returned %d, expected %d",
			ErrDimensionMismatch, s.provider.Name(), len(vec), s.dimension)
	}
	return vec, nil
}

func truncateRunes(s string, n int) string {
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
