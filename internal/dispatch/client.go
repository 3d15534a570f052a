// Package dispatch sends classified requests to LLM providers with admission
// control, ordered fallback, outer retry and metrics.
package dispatch

import (
	"fmt"
	"sync"
	"time"

	"github.com/QTest-hq/qroute/internal/classifier"
	"github.com/QTest-hq/qroute/internal/config"
	"github.com/QTest-hq/qroute/internal/llm"
	"github.com/QTest-hq/qroute/internal/selector"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	tracerName          = "github.com/QTest-hq/qroute/internal/dispatch"
	defaultRecentLimit  = 20
	streamBufferSize    = 16
	defaultAttemptLimit = 60 * time.Second
)

// Options configures a Client
type Options struct {
	Catalog             *selector.Catalog
	Selector            selector.Options
	ClassifierCacheSize int
	EmbeddingProvider   llm.Provider
	Retry               RetryPolicy
	MetricsHistory      int
	Tracer              trace.Tracer
}

// DefaultOptions returns the standard dispatch options
func DefaultOptions() Options {
	return Options{
		Catalog:             selector.DefaultCatalog(),
		Selector:            selector.DefaultOptions(),
		ClassifierCacheSize: classifier.DefaultCacheSize,
		EmbeddingProvider:   llm.ProviderOllama,
		Retry:               DefaultRetryPolicy(),
		MetricsHistory:      defaultMaxRecords,
	}
}

// registration pairs an adapter with its settings and its own limiter
type registration struct {
	client  llm.Client
	cfg     llm.ProviderConfig
	limiter *llm.RateLimiter
}

// Client is the multi-provider dispatch client. It is safe for concurrent use;
// providers should be registered before the first request.
type Client struct {
	opts       Options
	catalog    *selector.Catalog
	classifier *classifier.Classifier
	metrics    *Metrics
	tracer     trace.Tracer

	mu        sync.RWMutex
	providers []*registration
	selector  *selector.Selector
}

// New creates a client with no providers registered
func New(opts Options) *Client {
	if opts.Catalog == nil {
		opts.Catalog = selector.DefaultCatalog()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	c := &Client{
		opts:       opts,
		catalog:    opts.Catalog,
		classifier: classifier.New(opts.ClassifierCacheSize),
		metrics:    NewMetrics(opts.MetricsHistory),
		tracer:     opts.Tracer,
	}
	c.selector = selector.New(c.catalog.RestrictTo(nil), opts.Selector)
	return c
}

// NewFromConfig builds a client and registers every enabled provider
func NewFromConfig(cfg *config.Config) (*Client, error) {
	catalog, err := selector.LoadCatalog(cfg.LLM.CatalogPath)
	if err != nil {
		return nil, err
	}

	opts := DefaultOptions()
	opts.Catalog = catalog
	opts.Selector.PreferFree = cfg.LLM.PreferFreeModels
	opts.Selector.MaxCostPerQuery = cfg.LLM.MaxCostPerQuery
	opts.EmbeddingProvider = cfg.LLM.EmbeddingProvider
	opts.Retry.MaxAttempts = cfg.LLM.RetryAttempts
	opts.Retry.BaseDelay = cfg.LLM.RetryBaseDelay

	c := New(opts)
	for _, pc := range cfg.EnabledProviders() {
		client, err := llm.NewClient(pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s client: %w", pc.Provider, err)
		}
		c.Register(client, pc)
	}

	if len(c.Providers()) == 0 {
		log.Warn().Msg("no LLM providers enabled")
	}
	return c, nil
}

// Register adds an adapter; a second registration for the same provider replaces the first
func (c *Client) Register(client llm.Client, cfg llm.ProviderConfig) {
	cfg.Provider = client.Name()
	cfg.Enabled = true
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultAttemptLimit
	}
	reg := &registration{
		client:  client,
		cfg:     cfg,
		limiter: llm.NewRateLimiter(cfg.RequestsPerMinute, cfg.TokensPerMinute),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	replaced := false
	for i, r := range c.providers {
		if r.cfg.Provider == cfg.Provider {
			c.providers[i] = reg
			replaced = true
			break
		}
	}
	if !replaced {
		c.providers = append(c.providers, reg)
	}

	names := make([]llm.Provider, 0, len(c.providers))
	for _, r := range c.providers {
		names = append(names, r.cfg.Provider)
	}
	c.selector.SetCatalog(c.catalog.RestrictTo(names))

	log.Info().
		Str("provider", string(cfg.Provider)).
		Int("rpm", cfg.RequestsPerMinute).
		Int("tpm", cfg.TokensPerMinute).
		Dur("timeout", cfg.Timeout).
		Msg("registered LLM provider")
}

// Providers describes the registered adapters in registration order
func (c *Client) Providers() []llm.Descriptor {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]llm.Descriptor, 0, len(c.providers))
	for _, r := range c.providers {
		out = append(out, r.client.Describe())
	}
	return out
}

func (c *Client) registrations() []*registration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]*registration(nil), c.providers...)
}

func (c *Client) lookup(p llm.Provider) (*registration, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, r := range c.providers {
		if r.cfg.Provider == p {
			return r, true
		}
	}
	return nil, false
}

func (c *Client) currentSelector() *selector.Selector {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.selector
}

// Classify classifies a query without dispatching it
func (c *Client) Classify(query string) classifier.Classification {
	return c.classifier.Classify(query)
}

// SelectModel classifies query and selects a model among the registered providers
func (c *Client) SelectModel(query string, estimatedTokens int) (classifier.Classification, selector.Result) {
	cls := c.classifier.Classify(query)
	return cls, c.currentSelector().Select(cls, estimatedTokens, nil)
}

// Models returns the catalog as seen by the selector; models of unregistered providers are disabled
func (c *Client) Models() []selector.ModelDescriptor {
	return c.currentSelector().Catalog().Models()
}

// Catalog returns the full catalog the client was built with
func (c *Client) Catalog() *selector.Catalog {
	return c.catalog
}

// GetMetrics returns dispatch counters, limiter windows and selection statistics
func (c *Client) GetMetrics() MetricsSnapshot {
	snap := c.metrics.Snapshot(defaultRecentLimit)

	snap.RateLimits = make(map[llm.Provider]llm.WindowUsage)
	for _, r := range c.registrations() {
		snap.RateLimits[r.cfg.Provider] = r.limiter.Usage()
	}

	stats := c.currentSelector().Stats()
	snap.Selection = &stats
	return snap
}

// Metrics exposes the underlying metrics store
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// estimateCost prices usage with the catalog entry for model, 0 when unknown
func (c *Client) estimateCost(model string, tokens int) float64 {
	m, ok := c.catalog.Get(model)
	if !ok {
		return 0
	}
	return m.EstimateCost(tokens)
}
