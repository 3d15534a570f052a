package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrStreamTruncated ends a stream whose provider closed it without a final chunk.
var ErrStreamTruncated = errors.New("stream ended before completion")

// GenerateStream opens a stream on the first candidate that accepts it. Open
// failures fall back along the chain; once chunks flow the stream is not
// restarted, and a mid-stream error or cancellation ends it with an error chunk.
func (c *Client) GenerateStream(ctx context.Context, req *llm.Request, query string) (<-chan llm.StreamChunk, error) {
	if len(c.registrations()) == 0 {
		return nil, llm.ErrNoProviders
	}
	if req == nil {
		return nil, errNilRequest
	}

	requestID := requestIDFor(req)
	ctx, span := c.tracer.Start(ctx, "dispatch.GenerateStream",
		trace.WithAttributes(attribute.String("request_id", requestID)))
	logger := requestLogger(ctx, requestID)

	c.metrics.RequestStarted()
	start := time.Now()

	failed := &AllProvidersFailedError{}
	for i, cand := range c.chain(query, logger) {
		if ctx.Err() != nil {
			failed.Last = ctx.Err()
			break
		}

		streamCtx, cancel, in, err := c.openStream(ctx, cand, req)
		if err != nil {
			c.metrics.RecordAttemptFailure(cand.reg.cfg.Provider)
			failed.Attempts = append(failed.Attempts, Attempt{Provider: cand.reg.cfg.Provider, Model: cand.model, Err: err})
			failed.Last = err
			logger.Warn().
				Err(err).
				Str("provider", string(cand.reg.cfg.Provider)).
				Str("model", cand.model).
				Msg("stream open failed, trying next")
			continue
		}

		span.SetAttributes(
			attribute.String("provider", string(cand.reg.cfg.Provider)),
			attribute.String("model", cand.model),
		)

		out := make(chan llm.StreamChunk, streamBufferSize)
		f := &forwarder{
			client:    c,
			caller:    ctx,
			logger:    logger,
			span:      span,
			cand:      cand,
			requestID: requestID,
			promptEst: llm.EstimateTokens(req.System) + llm.EstimateTokens(req.Prompt),
			fallback:  i > 0,
			start:     start,
		}
		go f.run(streamCtx, cancel, in, out)
		return out, nil
	}

	if failed.Last == nil {
		failed.Last = llm.ErrNoProviders
	}
	c.metrics.RecordFailure()
	span.RecordError(failed)
	span.SetStatus(codes.Error, failed.Error())
	span.End()
	return nil, failed
}

// openStream admits and opens one stream under its own attempt context
func (c *Client) openStream(ctx context.Context, cand candidate, req *llm.Request) (context.Context, context.CancelFunc, <-chan llm.StreamChunk, error) {
	ctx, cancel := context.WithTimeout(ctx, cand.reg.cfg.Timeout)

	if err := cand.reg.limiter.Acquire(ctx, admissionTokens(req)); err != nil {
		cancel()
		return nil, nil, nil, llm.NewProviderError(cand.reg.cfg.Provider, cand.model, limiterKind(err), err)
	}

	r := req.WithModel(cand.model)
	r.Stream = true
	in, err := cand.reg.client.CompleteStream(ctx, r)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return ctx, cancel, in, nil
}

// forwarder relays one provider stream to the caller and records its outcome
type forwarder struct {
	client    *Client
	caller    context.Context
	logger    zerolog.Logger
	span      trace.Span
	cand      candidate
	requestID string
	promptEst int
	fallback  bool
	start     time.Time
}

func (f *forwarder) run(ctx context.Context, cancel context.CancelFunc, in <-chan llm.StreamChunk, out chan<- llm.StreamChunk) {
	defer close(out)
	defer cancel()
	defer f.span.End()

	var (
		content strings.Builder
		usage   *llm.Usage
	)

	for {
		select {
		case <-ctx.Done():
			f.fail(ctx.Err(), out)
			return
		case chunk, ok := <-in:
			if !ok {
				if ctx.Err() != nil {
					f.fail(ctx.Err(), out)
					return
				}
				f.fail(ErrStreamTruncated, out)
				return
			}
			if chunk.Err != nil {
				f.fail(chunk.Err, out)
				return
			}

			content.WriteString(chunk.Delta)
			if chunk.Usage != nil {
				usage = chunk.Usage
			}

			select {
			case out <- chunk:
			case <-ctx.Done():
				f.fail(ctx.Err(), out)
				return
			}

			if chunk.Done {
				f.succeed(content.String(), usage)
				return
			}
		}
	}
}

func (f *forwarder) succeed(content string, usage *llm.Usage) {
	u := llm.Usage{PromptTokens: f.promptEst, CompletionTokens: llm.EstimateTokens(content)}
	if usage != nil {
		u = *usage
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}

	cost := f.client.estimateCost(f.cand.model, u.TotalTokens)
	f.client.metrics.RecordSuccess(UsageRecord{
		RequestID:        f.requestID,
		Provider:         f.cand.reg.cfg.Provider,
		Model:            f.cand.model,
		PromptTokens:     u.PromptTokens,
		CompletionTokens: u.CompletionTokens,
		TotalTokens:      u.TotalTokens,
		Cost:             cost,
		Latency:          time.Since(f.start),
		Fallback:         f.fallback,
		Stream:           true,
	})
}

func (f *forwarder) fail(err error, out chan<- llm.StreamChunk) {
	provider := f.cand.reg.cfg.Provider
	f.client.metrics.RecordAttemptFailure(provider)
	f.client.metrics.RecordFailure()
	f.span.RecordError(err)
	f.span.SetStatus(codes.Error, err.Error())

	f.logger.Warn().
		Err(err).
		Str("provider", string(provider)).
		Str("model", f.cand.model).
		Msg("stream terminated")

	f.deliver(out, llm.StreamChunk{Done: true, Err: err})
}

// deliver sends a terminal chunk, giving up only once the caller's context is done
func (f *forwarder) deliver(out chan<- llm.StreamChunk, chunk llm.StreamChunk) {
	select {
	case out <- chunk:
		return
	default:
	}
	select {
	case out <- chunk:
	case <-f.caller.Done():
	}
}
