package dispatch

import (
	"context"
	"time"

	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// HealthStatus is the probe result for one provider
type HealthStatus struct {
	Provider  llm.Provider    `json:"provider"`
	Healthy   bool            `json:"healthy"`
	Error     string          `json:"error,omitempty"`
	Latency   time.Duration   `json:"latency"`
	CheckedAt time.Time       `json:"checked_at"`
	Info      llm.Descriptor  `json:"info"`
	Window    llm.WindowUsage `json:"window"`
}

// HealthCheck probes every registered provider concurrently
func (c *Client) HealthCheck(ctx context.Context) map[llm.Provider]HealthStatus {
	regs := c.registrations()
	results := make([]HealthStatus, len(regs))

	var g errgroup.Group
	for i, reg := range regs {
		g.Go(func() error {
			results[i] = probe(ctx, reg)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[llm.Provider]HealthStatus, len(results))
	for _, s := range results {
		out[s.Provider] = s
	}
	return out
}

// Healthy reports whether at least one provider answered its probe
func (c *Client) Healthy(ctx context.Context) bool {
	for _, s := range c.HealthCheck(ctx) {
		if s.Healthy {
			return true
		}
	}
	return false
}

func probe(ctx context.Context, reg *registration) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout(reg.cfg.Timeout))
	defer cancel()

	start := time.Now()
	err := reg.client.HealthCheck(ctx)

	status := HealthStatus{
		Provider:  reg.cfg.Provider,
		Healthy:   err == nil,
		Latency:   time.Since(start),
		CheckedAt: time.Now(),
		Info:      reg.client.Describe(),
		Window:    reg.limiter.Usage(),
	}
	if err != nil {
		status.Error = err.Error()
		log.Debug().Err(err).Str("provider", string(reg.cfg.Provider)).Msg("provider unhealthy")
	}
	return status
}

// healthTimeout caps probes well below generation timeouts
func healthTimeout(attempt time.Duration) time.Duration {
	const maxProbe = 10 * time.Second
	if attempt <= 0 || attempt > maxProbe {
		return maxProbe
	}
	return attempt
}
