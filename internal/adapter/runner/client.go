// Package runner wraps the external model CLI that builtin agents shell out
// to. The kernel never sees this client; agents own it.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"slate-core/internal/domain"
	"slate-core/internal/infra/tracer"
)

// Default breaker settings.
const (
	defaultMaxFailures uint32        = 3
	defaultCooldown    time.Duration = 30 * time.Second
	defaultTimeout     time.Duration = 120 * time.Second
)

// stderrPreview bounds how much of a failed command's stderr ends up in the
// error message.
const stderrPreview = 200

// Options configures a Client.
type Options struct {
	// Command is the model CLI binary, "ollama" by default.
	Command string
	// Timeout is the per-invocation deadline applied when the caller's
	// context has none.
	Timeout time.Duration
	// MaxPromptTokens rejects oversized prompts before spawning the
	// subprocess. Zero disables the budget.
	MaxPromptTokens int
	// RatePerSecond and RateBurst throttle invocations. Zero rate means
	// unlimited.
	RatePerSecond float64
	RateBurst     int
	// BreakerMaxFailures consecutive failures open the circuit for
	// BreakerCooldown.
	BreakerMaxFailures uint32
	BreakerCooldown    time.Duration
}

// Client invokes the model CLI with a circuit breaker, a rate limiter, and a
// prompt token budget. Safe for concurrent use.
type Client struct {
	opts    Options
	breaker *gobreaker.CircuitBreaker[string]
	limiter *rate.Limiter
	logger  *slog.Logger

	encOnce sync.Once
	enc     *tiktoken.Tiktoken
}

// New creates a runner client.
func New(opts Options, logger *slog.Logger) *Client {
	if opts.Command == "" {
		opts.Command = "ollama"
	}
	if opts.Timeout == 0 {
		opts.Timeout = defaultTimeout
	}
	maxFailures := opts.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	cooldown := opts.BreakerCooldown
	if cooldown == 0 {
		cooldown = defaultCooldown
	}

	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "runner:" + opts.Command,
		MaxRequests: 1, // one probe in half-open state
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("runner circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	var limiter *rate.Limiter
	if opts.RatePerSecond > 0 {
		burst := opts.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}

	return &Client{opts: opts, breaker: cb, limiter: limiter, logger: logger}
}

// Invoke runs one inference: `<command> run <model> <prompt>`. The prompt is
// budget-checked and the call is throttled and breaker-protected. Returns
// trimmed stdout.
func (c *Client) Invoke(ctx context.Context, model, prompt string) (string, error) {
	ctx, span := tracer.StartSpan(ctx, "runner.invoke")
	defer span.End()
	span.SetAttributes(tracer.StringAttr("runner.model", model))

	if c.opts.MaxPromptTokens > 0 {
		n := c.countTokens(prompt)
		span.SetAttributes(tracer.IntAttr("runner.prompt_tokens", n))
		if n > c.opts.MaxPromptTokens {
			err := fmt.Errorf("%w: prompt is %d tokens, budget %d",
				domain.ErrRunnerFailure, n, c.opts.MaxPromptTokens)
			tracer.RecordError(span, err)
			return "", err
		}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("%w: %v", domain.ErrRunnerFailure, err)
		}
	}

	out, err := c.breaker.Execute(func() (string, error) {
		return c.run(ctx, "run", model, prompt)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: circuit open for %s", domain.ErrRunnerFailure, c.opts.Command)
		}
		tracer.RecordError(span, err)
		return "", err
	}
	tracer.SetOK(span)
	return out, nil
}

// ListModels returns the model names the CLI reports, one per `list` output
// row. Used by agent health checks to verify model availability.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	out, err := c.run(ctx, "list")
	if err != nil {
		return nil, err
	}

	var models []string
	for _, line := range strings.Split(out, "\n") {
		fields := strings.Fields(line)
		if len(fields) == 0 || fields[0] == "NAME" {
			continue
		}
		// Rows are "name:tag  id  size  modified"; the bare name matters.
		models = append(models, strings.SplitN(fields[0], ":", 2)[0])
	}
	return models, nil
}

// HasModel reports whether the CLI knows the named model.
func (c *Client) HasModel(ctx context.Context, model string) bool {
	models, err := c.ListModels(ctx)
	if err != nil {
		return false
	}
	for _, m := range models {
		if m == model {
			return true
		}
	}
	return false
}

// run executes the CLI once with the client deadline applied.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.opts.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %s %s", domain.ErrRunnerTimeout, c.opts.Command, args[0])
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > stderrPreview {
			msg = msg[:stderrPreview]
		}
		return "", fmt.Errorf("%w: %s: %s", domain.ErrRunnerFailure, c.opts.Command, msg)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// countTokens sizes a prompt with the cl100k_base encoder, lazily
// initialized. When the encoding cannot be fetched (offline hosts), a
// bytes/4 estimate keeps the budget working.
func (c *Client) countTokens(s string) int {
	c.encOnce.Do(func() {
		enc, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			c.logger.Warn("tiktoken encoding unavailable, estimating tokens", "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return len(s) / 4
	}
	return len(c.enc.Encode(s, nil, nil))
}
