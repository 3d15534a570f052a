package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// CreateEmbedding embeds text on the designated embedding provider, then on the
// remaining providers in registration order. Providers without embeddings are skipped.
func (c *Client) CreateEmbedding(ctx context.Context, text string) ([]float64, error) {
	regs := c.embeddingOrder()
	if len(regs) == 0 {
		return nil, llm.ErrNoProviders
	}

	ctx, span := c.tracer.Start(ctx, "dispatch.CreateEmbedding")
	defer span.End()

	failed := &AllProvidersFailedError{}
	for _, reg := range regs {
		desc := reg.client.Describe()
		if !desc.SupportsEmbeddings {
			continue
		}
		if ctx.Err() != nil {
			failed.Last = ctx.Err()
			break
		}

		start := time.Now()
		vec, err := c.embedOnce(ctx, reg, text)
		if err == nil {
			c.metrics.RecordEmbedding(reg.cfg.Provider)
			span.SetAttributes(
				attribute.String("provider", string(reg.cfg.Provider)),
				attribute.String("model", desc.EmbeddingModel),
				attribute.Int("dimensions", len(vec)),
			)
			return vec, nil
		}

		if errors.Is(err, llm.ErrUnsupported) || llm.KindOf(err) == llm.KindUnsupported {
			continue
		}

		c.metrics.RecordAttemptFailure(reg.cfg.Provider)
		failed.Attempts = append(failed.Attempts, Attempt{
			Provider: reg.cfg.Provider,
			Model:    desc.EmbeddingModel,
			Err:      err,
			Latency:  time.Since(start),
		})
		failed.Last = err

		log.Warn().
			Err(err).
			Str("provider", string(reg.cfg.Provider)).
			Str("model", desc.EmbeddingModel).
			Msg("embedding failed, trying next")
	}

	if failed.Last == nil {
		err := fmt.Errorf("no registered provider supports embeddings: %w", llm.ErrUnsupported)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.RecordError(failed)
	span.SetStatus(codes.Error, failed.Error())
	return nil, failed
}

func (c *Client) embedOnce(ctx context.Context, reg *registration, text string) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, reg.cfg.Timeout)
	defer cancel()

	if err := reg.limiter.Acquire(ctx, llm.EstimateTokens(text)); err != nil {
		return nil, llm.NewProviderError(reg.cfg.Provider, "", limiterKind(err), err)
	}
	return reg.client.Embed(ctx, text)
}

// embeddingOrder puts the designated embedder first
func (c *Client) embeddingOrder() []*registration {
	regs := c.registrations()
	out := make([]*registration, 0, len(regs))
	for _, r := range regs {
		if r.cfg.Provider == c.opts.EmbeddingProvider {
			out = append(out, r)
		}
	}
	for _, r := range regs {
		if r.cfg.Provider != c.opts.EmbeddingProvider {
			out = append(out, r)
		}
	}
	return out
}
