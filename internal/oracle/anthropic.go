package oracle

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/usage-insight/internal/metrics"
	"github.com/sells-group/usage-insight/internal/model"
	"github.com/sells-group/usage-insight/internal/resilience"
	"github.com/sells-group/usage-insight/pkg/anthropic"
)

// Config holds the Anthropic oracle settings.
type Config struct {
	APIKey      string
	Model       string
	BaseURL     string
	Timeout     time.Duration // per attempt
	MaxRetries  int           // retries after the first attempt
	MaxTokens   int64
	Temperature float64

	// RetryBackoff is the delay before the first retry. It doubles per
	// retry up to MaxBackoff, with 20% jitter.
	RetryBackoff time.Duration
	MaxBackoff   time.Duration

	// RatePerSec limits outgoing calls; zero disables the limiter.
	RatePerSec float64
	Burst      int

	FailureThreshold int
	ResetTimeout     time.Duration
}

// DefaultConfig returns the oracle defaults: 30s per attempt, 2 retries
// starting at 500ms apart.
func DefaultConfig() Config {
	return Config{
		Timeout:          30 * time.Second,
		MaxRetries:       2,
		RetryBackoff:     500 * time.Millisecond,
		MaxBackoff:       5 * time.Second,
		MaxTokens:        1000,
		Temperature:      0.3,
		FailureThreshold: 5,
		ResetTimeout:     time.Minute,
	}
}

// AnthropicOracle judges usage through the Anthropic Messages API.
type AnthropicOracle struct {
	cfg     Config
	client  anthropic.Client
	limiter *rate.Limiter
	breaker *resilience.CircuitBreaker
	now     func() time.Time
}

// Option customizes an AnthropicOracle.
type Option func(*AnthropicOracle)

// WithClient replaces the SDK-backed client.
func WithClient(c anthropic.Client) Option {
	return func(o *AnthropicOracle) { o.client = c }
}

// WithClock overrides the verdict timestamp source.
func WithClock(now func() time.Time) Option {
	return func(o *AnthropicOracle) { o.now = now }
}

// NewAnthropicOracle validates cfg and builds the oracle. A missing API key
// or model is ErrNotConfigured.
func NewAnthropicOracle(cfg Config, opts ...Option) (*AnthropicOracle, error) {
	if cfg.APIKey == "" {
		return nil, eris.Wrap(ErrNotConfigured, "oracle: api key is required")
	}
	if cfg.Model == "" {
		return nil, eris.Wrap(ErrNotConfigured, "oracle: model is required")
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	o := &AnthropicOracle{
		cfg: cfg,
		breaker: resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.FailureThreshold,
			ResetTimeout:     cfg.ResetTimeout,
			OnStateChange: func(from, to resilience.CircuitState) {
				zap.L().Warn("oracle: circuit state change",
					zap.String("from", from.String()),
					zap.String("to", to.String()),
				)
			},
		}),
		now: time.Now,
	}
	if cfg.RatePerSec > 0 {
		o.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), max(cfg.Burst, 1))
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.client == nil {
		clientOpts := []anthropic.Option{}
		if cfg.BaseURL != "" {
			clientOpts = append(clientOpts, anthropic.WithBaseURL(cfg.BaseURL))
		}
		o.client = anthropic.NewClient(cfg.APIKey, clientOpts...)
	}
	return o, nil
}

// Judge asks the model for a verdict. Each attempt is bounded by
// Config.Timeout. Timeouts, transient API errors and malformed replies are
// retried with backoff; an API rejection such as a bad key is not. Every
// failure is returned as *UnavailableError.
func (o *AnthropicOracle) Judge(ctx context.Context, req Request) (*model.AIVerdict, error) {
	start := time.Now()
	defer func() {
		metrics.OracleRequestDuration.Observe(time.Since(start).Seconds())
	}()

	prompt, err := buildPrompt(req)
	if err != nil {
		return nil, o.fail(eris.Wrap(err, "oracle: build prompt"), 0)
	}

	period := req.Current.PeriodStart.Format("2006-01")
	verdict, attempts, err := invoke(ctx, o, "judge", func(ctx context.Context) (*model.AIVerdict, error) {
		return o.judgeOnce(ctx, prompt)
	}, zap.String("energy_kind", string(req.Kind)), zap.String("period", period))
	if err != nil {
		return nil, o.fail(err, attempts)
	}

	metrics.OracleRequestsTotal.WithLabelValues(metrics.StatusOK).Inc()
	return verdict, nil
}

// invoke runs one logical call through the rate limiter, the circuit
// breaker and the retry policy, and reports how many attempts it made.
func invoke[T any](ctx context.Context, o *AnthropicOracle, operation string, attempt func(context.Context) (T, error), fields ...zap.Field) (T, int, error) {
	var zero T
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return zero, 0, eris.Wrap(err, "oracle: rate limit wait")
		}
	}

	var attempts atomic.Int32
	retry := resilience.RetryConfig{
		MaxAttempts:       o.cfg.MaxRetries + 1,
		PerAttemptTimeout: o.cfg.Timeout,
		Backoff:           o.cfg.RetryBackoff,
		MaxBackoff:        o.cfg.MaxBackoff,
		Multiplier:        2,
		JitterFraction:    0.2,
		ShouldRetry:       retryable,
		OnRetry:           resilience.RetryLogger("anthropic", operation, fields...),
	}
	v, err := resilience.ExecuteVal(ctx, o.breaker, func(ctx context.Context) (T, error) {
		return resilience.DoVal(ctx, retry, func(ctx context.Context) (T, error) {
			attempts.Add(1)
			return attempt(ctx)
		})
	})
	return v, int(attempts.Load()), err
}

// retryable reports whether a failed attempt is worth repeating. Anything
// that is not an explicit API rejection, including an unparseable reply,
// gets another attempt.
func retryable(err error) bool {
	switch resilience.Classify(err) {
	case resilience.ClassTransient:
		return true
	case resilience.ClassCanceled:
		return false
	}
	return !resilience.IsPermanent(err)
}

// complete sends one user message and returns the reply text.
func (o *AnthropicOracle) complete(ctx context.Context, system, prompt string, maxTokens int64) (string, error) {
	temp := o.cfg.Temperature
	resp, err := o.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:       o.cfg.Model,
		MaxTokens:   maxTokens,
		System:      system,
		Messages:    []anthropic.Message{{Role: "user", Content: prompt}},
		Temperature: &temp,
	})
	if err != nil {
		return "", err
	}

	resp.Usage.LogCost(o.cfg.Model, "oracle")
	metrics.OracleTokensTotal.WithLabelValues("input").Add(float64(resp.Usage.InputTokens))
	metrics.OracleTokensTotal.WithLabelValues("output").Add(float64(resp.Usage.OutputTokens))
	return resp.Text(), nil
}

func (o *AnthropicOracle) judgeOnce(ctx context.Context, prompt string) (*model.AIVerdict, error) {
	text, err := o.complete(ctx, systemPrompt, prompt, o.cfg.MaxTokens)
	if err != nil {
		return nil, err
	}
	verdict, err := parseVerdict(text)
	if err != nil {
		return nil, err
	}
	verdict.ModelID = o.cfg.Model
	verdict.Timestamp = o.now()
	return verdict, nil
}

func (o *AnthropicOracle) fail(err error, attempts int) error {
	status := metrics.StatusError
	if errors.Is(err, resilience.ErrCircuitOpen) {
		status = metrics.StatusCircuitOpen
	}
	metrics.OracleRequestsTotal.WithLabelValues(status).Inc()
	return &UnavailableError{Err: err, Attempts: attempts}
}
