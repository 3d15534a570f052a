package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/telemetry"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errNilRequest = errors.New("nil request")

// candidate is one (adapter, model) step of the fallback chain
type candidate struct {
	reg   *registration
	model string
}

// GenerateText completes req on the best provider for query, falling back along
// the selection chain and retrying the whole chain on transient failure.
// An empty query skips selection and walks the registered providers in order.
func (c *Client) GenerateText(ctx context.Context, req *llm.Request, query string) (*llm.Response, error) {
	if len(c.registrations()) == 0 {
		return nil, llm.ErrNoProviders
	}
	if req == nil {
		return nil, errNilRequest
	}

	requestID := requestIDFor(req)
	ctx, span := c.tracer.Start(ctx, "dispatch.GenerateText",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	defer span.End()
	logger := requestLogger(ctx, requestID)

	c.metrics.RequestStarted()
	start := time.Now()

	chain := c.chain(query, logger)

	var resp *llm.Response
	err := c.opts.Retry.do(ctx, logger, func(ctx context.Context, attempt int) error {
		r, err := c.runChain(ctx, logger, chain, req, requestID, attempt)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		c.metrics.RecordFailure()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error().Err(err).Dur("latency", time.Since(start)).Msg("request failed")
		return nil, err
	}

	resp.RequestID = requestID
	span.SetAttributes(
		attribute.String("provider", string(resp.Provider)),
		attribute.String("model", resp.Model),
	)
	return resp, nil
}

// runChain tries each candidate once; the first success wins
func (c *Client) runChain(ctx context.Context, logger zerolog.Logger, chain []candidate, req *llm.Request, requestID string, pass int) (*llm.Response, error) {
	failed := &AllProvidersFailedError{}

	for i, cand := range chain {
		if ctx.Err() != nil {
			failed.Attempts = append(failed.Attempts, Attempt{Provider: cand.reg.cfg.Provider, Model: cand.model, Err: ctx.Err()})
			failed.Last = ctx.Err()
			break
		}

		attemptStart := time.Now()
		resp, err := c.attempt(ctx, cand, req, pass, i)
		latency := time.Since(attemptStart)
		if err == nil {
			cost := c.estimateCost(resp.Model, resp.Usage.TotalTokens)
			resp.EstimatedCost = cost
			if resp.Latency == 0 {
				resp.Latency = latency
			}

			c.metrics.RecordSuccess(UsageRecord{
				RequestID:        requestID,
				Provider:         resp.Provider,
				Model:            resp.Model,
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
				Cost:             cost,
				Latency:          latency,
				Fallback:         i > 0,
			})

			if i > 0 {
				logger.Info().
					Str("provider", string(cand.reg.cfg.Provider)).
					Str("model", cand.model).
					Int("position", i).
					Msg("served by fallback provider")
			}
			return resp, nil
		}

		c.metrics.RecordAttemptFailure(cand.reg.cfg.Provider)
		failed.Attempts = append(failed.Attempts, Attempt{
			Provider: cand.reg.cfg.Provider,
			Model:    cand.model,
			Err:      err,
			Latency:  latency,
		})
		failed.Last = err

		logger.Warn().
			Err(err).
			Str("provider", string(cand.reg.cfg.Provider)).
			Str("model", cand.model).
			Int("attempt", pass).
			Msg("provider failed, trying next")
	}

	if failed.Last == nil {
		failed.Last = llm.ErrNoProviders
	}
	return nil, failed
}

// attempt runs a single admission-controlled call with its own timeout
func (c *Client) attempt(ctx context.Context, cand candidate, req *llm.Request, pass, position int) (*llm.Response, error) {
	provider := cand.reg.cfg.Provider

	ctx, span := c.tracer.Start(ctx, "dispatch.attempt", trace.WithAttributes(
		attribute.String("provider", string(provider)),
		attribute.String("model", cand.model),
		attribute.Int("attempt", pass),
		attribute.Int("position", position),
	))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, cand.reg.cfg.Timeout)
	defer cancel()

	if err := cand.reg.limiter.Acquire(ctx, admissionTokens(req)); err != nil {
		err = llm.NewProviderError(provider, cand.model, limiterKind(err), fmt.Errorf("admission: %w", err))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp, err := cand.reg.client.Complete(ctx, req.WithModel(cand.model))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if resp.Provider == "" {
		resp.Provider = provider
	}
	if resp.Model == "" {
		resp.Model = cand.model
	}
	return resp, nil
}

// chain maps the selection for query onto registered adapters
func (c *Client) chain(query string, logger zerolog.Logger) []candidate {
	regs := c.registrations()
	if query == "" {
		return defaultChain(regs)
	}

	cls, sel := c.SelectModel(query, 0)
	logger.Debug().
		Str("category", string(cls.Category)).
		Str("complexity", string(cls.Complexity)).
		Str("model", sel.ModelID).
		Strs("fallbacks", sel.Fallbacks).
		Msg("routing request")

	var out []candidate
	add := func(p llm.Provider, model string) {
		reg, ok := c.lookup(p)
		if !ok {
			logger.Warn().Str("provider", string(p)).Str("model", model).Msg("no adapter registered for provider, skipping")
			return
		}
		out = append(out, candidate{reg: reg, model: model})
	}

	add(sel.Provider, sel.ModelID)
	for _, id := range sel.Fallbacks {
		m, ok := c.catalog.Get(id)
		if !ok {
			continue
		}
		add(m.Provider, m.ID)
	}

	if len(out) == 0 {
		return defaultChain(regs)
	}
	return out
}

func defaultChain(regs []*registration) []candidate {
	out := make([]candidate, 0, len(regs))
	for _, r := range regs {
		out = append(out, candidate{reg: r, model: r.client.Describe().DefaultModel})
	}
	return out
}

// admissionTokens is the prompt estimate plus the completion budget
func admissionTokens(req *llm.Request) int {
	return llm.EstimateTokens(req.System) + llm.EstimateTokens(req.Prompt) + req.MaxTokens
}

func limiterKind(err error) llm.ErrorKind {
	switch {
	case errors.Is(err, llm.ErrTokensExceedCap):
		return llm.KindInvalidRequest
	case errors.Is(err, context.Canceled):
		return llm.KindCanceled
	}
	return llm.KindRateLimit
}

func requestIDFor(req *llm.Request) string {
	if req != nil && req.Metadata != nil {
		if id := req.Metadata["request_id"]; id != "" {
			return id
		}
	}
	return uuid.NewString()
}

// requestLogger tags lines with the request id and, under tracing, the trace id
func requestLogger(ctx context.Context, requestID string) zerolog.Logger {
	lc := log.With().Str("request_id", requestID)
	if id := telemetry.TraceIDFromContext(ctx); id != "" {
		lc = lc.Str("trace_id", id)
	}
	return lc.Logger()
}
