// ABOUTME: Gateway orchestrator that wires the store, tools, runtime and HTTP server
// ABOUTME: Manages the server lifecycle, tracing and graceful shutdown

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kimyungju/pricewise/internal/agent"
	"github.com/kimyungju/pricewise/internal/approval"
	"github.com/kimyungju/pricewise/internal/config"
	"github.com/kimyungju/pricewise/internal/conversation"
	"github.com/kimyungju/pricewise/internal/llm"
	"github.com/kimyungju/pricewise/internal/observability"
	"github.com/kimyungju/pricewise/internal/session"
	"github.com/kimyungju/pricewise/internal/store"
	"github.com/kimyungju/pricewise/internal/tools"
)

// Version is reported by the CLI and the tracing resource. Set at build time
// with -ldflags "-X github.com/kimyungju/pricewise/internal/gateway.Version=...".
var Version = "dev"

// Gateway owns every server component of pricewise.
type Gateway struct {
	config       *config.Config
	store        store.Store
	conversation *conversation.Service
	httpServer   *http.Server
	metrics      *observability.Metrics
	logger       *slog.Logger

	// searchTool owns the search result cache
	searchTool *tools.SearchProductTool

	// eventBroadcaster fans turn events out to watchers
	eventBroadcaster *conversation.EventBroadcaster

	shutdownTracing func(context.Context) error
}

// Option customizes the components New builds from the config.
type Option func(*options)

type options struct {
	provider llm.Provider
	searcher tools.Searcher
}

// WithProvider replaces the OpenAI provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithSearcher replaces the Tavily client.
func WithSearcher(s tools.Searcher) Option {
	return func(o *options) { o.searcher = s }
}

// initStore opens the configured checkpoint backend.
func initStore(cfg *config.Config) (store.Store, error) {
	s, err := store.Open(store.Options{
		Backend:     cfg.Checkpoint.Backend,
		SQLitePath:  cfg.Checkpoint.Path,
		PostgresURI: cfg.Checkpoint.PostgresURI,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// buildRegistry registers every tool and gates the ones that need approval.
func buildRegistry(cfg *config.Config, s store.WishlistStore, searcher tools.Searcher, metrics *observability.Metrics, logger *slog.Logger) (*tools.Registry, *tools.SearchProductTool, error) {
	reg := tools.NewRegistry(metrics, logger)
	search := tools.NewSearchProductTool(searcher, cfg.Search.CacheTTL)

	for _, t := range []tools.Tool{
		search,
		tools.BudgetTool{},
		tools.NewAddToWishlistTool(s),
		tools.NewViewWishlistTool(s),
	} {
		if err := reg.Register(t); err != nil {
			search.Close()
			return nil, nil, err
		}
	}
	if err := approval.Gate(reg, cfg.Agent.RequireApproval...); err != nil {
		search.Close()
		return nil, nil, err
	}
	return reg, search, nil
}

// New creates a new Gateway instance with the given configuration.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	shutdownTracing := func(context.Context) error { return nil }
	if cfg.Tracing.Enabled {
		var err error
		shutdownTracing, err = observability.SetupTracing(context.Background(), observability.TraceConfig{
			ServiceName:    cfg.Tracing.ServiceName,
			ServiceVersion: Version,
			Endpoint:       cfg.Tracing.Endpoint,
			Insecure:       cfg.Tracing.Insecure,
		})
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
	}

	var metrics *observability.Metrics
	if cfg.Metrics.Enabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	provider := o.provider
	if provider == nil {
		openai, err := llm.NewOpenAIProvider(llm.OpenAIConfig{
			APIKey:     cfg.LLM.APIKey,
			BaseURL:    cfg.LLM.BaseURL,
			MaxRetries: cfg.LLM.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("creating model provider: %w", err)
		}
		provider = openai
	}
	provider = llm.Instrument(provider, metrics)

	searcher := o.searcher
	if searcher == nil {
		searcher = tools.NewTavilyClient(tools.TavilyConfig{
			APIKey:     cfg.Search.APIKey,
			BaseURL:    cfg.Search.BaseURL,
			MaxResults: cfg.Search.MaxResults,
			Topic:      cfg.Search.Topic,
		})
	}

	s, err := initStore(cfg)
	if err != nil {
		return nil, err
	}

	registry, searchTool, err := buildRegistry(cfg, s, searcher, metrics, logger)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("registering tools: %w", err)
	}

	runtime := agent.NewRuntime(provider, registry, s, agent.Config{
		Model:                cfg.LLM.Model,
		SystemPrompt:         cfg.Agent.SystemPrompt,
		KeepRecent:           cfg.Agent.KeepRecent,
		MaxSteps:             cfg.Agent.MaxSteps,
		InterruptBeforeTools: cfg.Agent.InterruptBeforeTools,
	}, agent.WithMetrics(metrics), agent.WithLogger(logger))

	sessions := session.NewRegistry(s, logger)
	sessions.OnCreate(func(_ *session.Session, rehydrated bool) {
		metrics.SessionCreated(rehydrated)
	})

	eventBroadcaster := conversation.NewEventBroadcaster(logger.With("component", "broadcaster"))
	convService := conversation.New(runtime, sessions, eventBroadcaster, metrics, logger)

	gw := &Gateway{
		config:           cfg,
		store:            s,
		conversation:     convService,
		metrics:          metrics,
		logger:           logger.With("component", "gateway"),
		searchTool:       searchTool,
		eventBroadcaster: eventBroadcaster,
		shutdownTracing:  shutdownTracing,
	}

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// Handler returns the HTTP handler with every route and middleware applied.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", g.handleHealth)
	g.registerChatRoutes(mux)

	if g.metrics != nil {
		path := g.config.Metrics.Path
		if path == "" {
			path = "/metrics"
		}
		mux.Handle("GET "+path, g.metrics.Handler())
	}

	var h http.Handler = mux
	h = instrumentRequests(h, g.metrics)
	h = corsMiddleware(h, g.config.Server.AllowedOrigins)
	return h
}

// startServer starts the HTTP server in a goroutine, returning its error channel.
func (g *Gateway) startServer(ln net.Listener) chan error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()
	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// Run serves HTTP until ctx is cancelled or the server fails, then shuts down.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		g.closeComponents()
		return fmt.Errorf("listening on %s: %w", g.config.Server.HTTPAddr, err)
	}
	g.logger.Info("starting pricewise",
		"http_addr", ln.Addr().String(),
		"checkpoint_backend", g.config.Checkpoint.Backend,
		"model", g.config.LLM.Model,
	)

	errCh := g.startServer(ln)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The original context is already canceled at this point.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

func (g *Gateway) closeComponents() []error {
	var errs []error
	g.eventBroadcaster.Close()
	g.searchTool.Close()
	errs = appendCloseError(errs, "store close", g.store.Close())
	errs = appendCloseError(errs, "tracing shutdown", g.shutdownTracing(context.Background()))
	return errs
}

// Shutdown stops the HTTP server and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down pricewise")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = append(errs, g.closeComponents()...)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth reports liveness.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
