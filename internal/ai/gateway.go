package ai

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/seanblong/docqa/pkg/models"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// GatewayOptions tunes batching, concurrency and retry for model calls.
type GatewayOptions struct {
	BatchSize       int
	MaxInFlight     int
	MaxAttempts     int
	CallTimeout     time.Duration
	GenerateTimeout time.Duration
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	// RatePerSecond caps embedding requests; zero means unlimited.
	RatePerSecond float64
}

// DefaultGatewayOptions returns the production defaults.
func DefaultGatewayOptions() GatewayOptions {
	return GatewayOptions{
		BatchSize:       32,
		MaxInFlight:     2,
		MaxAttempts:     3,
		CallTimeout:     30 * time.Second,
		GenerateTimeout: 60 * time.Second,
		BaseBackoff:     500 * time.Millisecond,
		MaxBackoff:      8 * time.Second,
	}
}

func (o GatewayOptions) withDefaults() GatewayOptions {
	d := DefaultGatewayOptions()
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.MaxInFlight <= 0 {
		o.MaxInFlight = d.MaxInFlight
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = d.MaxAttempts
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = d.CallTimeout
	}
	if o.GenerateTimeout <= 0 {
		o.GenerateTimeout = d.GenerateTimeout
	}
	if o.BaseBackoff <= 0 {
		o.BaseBackoff = d.BaseBackoff
	}
	if o.MaxBackoff < o.BaseBackoff {
		o.MaxBackoff = o.BaseBackoff
	}
	return o
}

// Gateway wraps an Embedder and Generator with batching, a process-wide
// bound on in-flight embedding batches, rate limiting, per-call timeouts and
// bounded exponential-backoff retry. It is safe for concurrent use.
type Gateway struct {
	embedder  Embedder
	generator Generator
	opts      GatewayOptions
	sem       *semaphore.Weighted
	limiter   *rate.Limiter
}

// NewGateway builds a Gateway. generator may be nil for ingestion-only use.
func NewGateway(embedder Embedder, generator Generator, opts GatewayOptions) *Gateway {
	opts = opts.withDefaults()
	g := &Gateway{
		embedder:  embedder,
		generator: generator,
		opts:      opts,
		sem:       semaphore.NewWeighted(int64(opts.MaxInFlight)),
	}
	if opts.RatePerSecond > 0 {
		burst := int(math.Ceil(opts.RatePerSecond))
		g.limiter = rate.NewLimiter(rate.Limit(opts.RatePerSecond), burst)
	}
	return g
}

func (g *Gateway) Dim() int { return g.embedder.Dim() }

// Embed returns one vector per text in input order. Any batch that still
// fails after retries fails the whole call with models.ErrEmbeddingUnavailable.
func (g *Gateway) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if len(texts) == 0 {
		return out, nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for start := 0; start < len(texts); start += g.opts.BatchSize {
		end := min(start+g.opts.BatchSize, len(texts))
		eg.Go(func() error {
			if err := g.sem.Acquire(egCtx, 1); err != nil {
				return err
			}
			defer g.sem.Release(1)

			vecs, err := g.embedBatch(egCtx, texts[start:end])
			if err != nil {
				return err
			}
			copy(out[start:end], vecs)
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (g *Gateway) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	var lastErr error
	attempts := 0
	for attempts < g.opts.MaxAttempts {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
		vecs, err := g.embedder.Embed(callCtx, batch)
		timedOut := errors.Is(callCtx.Err(), context.DeadlineExceeded)
		cancel()

		if err == nil {
			if err = g.validate(batch, vecs); err == nil {
				return vecs, nil
			}
		}
		if ctx.Err() != nil {
			return nil, contextError(ctx)
		}
		if timedOut {
			err = fmt.Errorf("%w: %w", models.ErrTimeout, err)
		}
		lastErr = err
		if !IsTransient(err) {
			break
		}
		if attempts < g.opts.MaxAttempts {
			wait := g.backoff(attempts)
			log.Debug().Err(err).Int("attempt", attempts).Int("batch", len(batch)).Dur("backoff", wait).Msg("embedding failed, retrying")
			if err := sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
	}
	return nil, fmt.Errorf("%w: after %d attempts: %w", models.ErrEmbeddingUnavailable, attempts, lastErr)
}

func (g *Gateway) validate(batch []string, vecs [][]float32) error {
	if len(vecs) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d inputs", len(vecs), len(batch))
	}
	dim := g.embedder.Dim()
	for i, v := range vecs {
		if len(v) == 0 {
			return fmt.Errorf("embedder returned an empty vector at %d", i)
		}
		if dim > 0 && len(v) != dim {
			return fmt.Errorf("embedder returned %d dimensions at %d, want %d", len(v), i, dim)
		}
	}
	return nil
}

func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.opts.BaseBackoff << (attempt - 1)
	if d <= 0 || d > g.opts.MaxBackoff {
		return g.opts.MaxBackoff
	}
	return d
}

// contextError tags an expired caller deadline as models.ErrTimeout.
func contextError(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", models.ErrTimeout, err)
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Generate calls the generator once, without retry. Backend failures wrap
// models.ErrGenerationUnavailable, and models.ErrTimeout as well when the
// call deadline expired. Caller cancellation is returned as is.
func (g *Gateway) Generate(ctx context.Context, prompt string) (string, error) {
	if g.generator == nil {
		return "", fmt.Errorf("%w: no generator configured", models.ErrGenerationUnavailable)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.GenerateTimeout)
	defer cancel()

	answer, err := g.generator.Generate(callCtx, prompt)
	if err == nil {
		return answer, nil
	}
	if ctx.Err() != nil {
		return "", fmt.Errorf("generate: %w", contextError(ctx))
	}
	if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return "", fmt.Errorf("%w: %w: %w", models.ErrGenerationUnavailable, models.ErrTimeout, err)
	}
	return "", fmt.Errorf("%w: %w", models.ErrGenerationUnavailable, err)
}
