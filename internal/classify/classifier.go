// Package classify assigns risk verdicts to alert text. It combines an
// optional external language-model classifier with a deterministic keyword
// heuristic and a strict fallback chain, so classification always completes.
package classify

import (
	"context"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/linnemanlabs/safewatch/internal/alert"
)

const tracerName = "github.com/linnemanlabs/safewatch/internal/classify"

const (
	DefaultTimeout         = 30 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// Fallback reasons reported through Hooks.OnFallback.
const (
	FallbackUnconfigured = "unconfigured"
	FallbackUnreachable  = "unreachable"
	FallbackEmpty        = "empty_response"
	FallbackMalformed    = "malformed_response"
)

// Provider is the interface for any external classifier backend. Complete
// performs exactly one request and returns the raw response text. An empty
// string means the backend answered without usable content.
type Provider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Hooks receives classification events. Nil funcs are skipped.
type Hooks struct {
	OnVerdict  func(source alert.Source, seconds float64)
	OnFallback func(reason string)
}

// Options tunes the external call path.
type Options struct {
	// Timeout bounds a single external call. Zero means DefaultTimeout.
	Timeout time.Duration
	// BreakerFailures is the number of consecutive failures that opens the
	// circuit. Zero means DefaultBreakerFailures.
	BreakerFailures uint32
	// BreakerCooldown is how long the circuit stays open. Zero means
	// DefaultBreakerCooldown.
	BreakerCooldown time.Duration
}

// Classifier implements alert.Classifier.
type Classifier struct {
	provider Provider
	breaker  *gobreaker.CircuitBreaker
	timeout  time.Duration
	logger   log.Logger
	hooks    Hooks
}

// New creates a classifier. A nil provider selects heuristic-only mode.
func New(provider Provider, logger log.Logger, opts Options, hooks Hooks) *Classifier {
	if logger == nil {
		logger = log.Nop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = DefaultBreakerFailures
	}
	if opts.BreakerCooldown <= 0 {
		opts.BreakerCooldown = DefaultBreakerCooldown
	}

	c := &Classifier{
		provider: provider,
		timeout:  opts.Timeout,
		logger:   logger,
		hooks:    hooks,
	}

	failures := opts.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "classifier",
		MaxRequests: 1,
		Timeout:     opts.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn(context.Background(), "classifier circuit state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})

	return c
}

// Configured reports whether an external provider is wired.
func (c *Classifier) Configured() bool {
	return c.provider != nil
}

// Classify returns a verdict for text. It never fails and always carries a
// concrete risk.
func (c *Classifier) Classify(ctx context.Context, text string) alert.Verdict {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "classify")
	defer span.End()

	start := time.Now()
	v := c.classify(ctx, text)
	span.SetAttributes(
		attribute.String("classify.risk", string(v.Risk)),
		attribute.String("classify.source", string(v.Source)),
		attribute.Bool("classify.external_configured", c.provider != nil),
	)
	if c.hooks.OnVerdict != nil {
		c.hooks.OnVerdict(v.Source, time.Since(start).Seconds())
	}
	return v
}

func (c *Classifier) classify(ctx context.Context, text string) alert.Verdict {
	if c.provider == nil {
		c.fallback(FallbackUnconfigured)
		return Heuristic(text)
	}

	// the external call runs to completion or failure even if the caller
	// goes away; only the configured timeout bounds it
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.provider.Complete(callCtx, BuildPrompt(text))
	})
	if err != nil {
		c.logger.Error(ctx, err, "external classifier call failed, falling back to heuristic")
		c.fallback(FallbackUnreachable)
		v := Heuristic(text)
		v.Source = alert.SourceError
		return v
	}

	content, _ := out.(string)
	if strings.TrimSpace(content) == "" {
		c.logger.Warn(ctx, "external classifier returned no content, falling back to heuristic")
		c.fallback(FallbackEmpty)
		return Heuristic(text)
	}

	v, err := ParseVerdict(content)
	if err != nil {
		c.logger.Warn(ctx, "could not parse external classifier response, falling back to heuristic",
			"error", err.Error())
		c.fallback(FallbackMalformed)
		return Heuristic(text)
	}

	c.logger.Info(ctx, "external classifier verdict", "risk", v.Risk)
	return v
}

func (c *Classifier) fallback(reason string) {
	if c.hooks.OnFallback != nil {
		c.hooks.OnFallback(reason)
	}
}
