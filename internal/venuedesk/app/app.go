// Package app assembles the venuedesk negotiation service: store, catalog,
// classifier, engine, approval gate and the HTTP API.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/venuedesk/venuedesk/internal/venuedesk/approvals"
	"github.com/venuedesk/venuedesk/internal/venuedesk/catalog"
	"github.com/venuedesk/venuedesk/internal/venuedesk/classify"
	vdconfig "github.com/venuedesk/venuedesk/internal/venuedesk/config"
	"github.com/venuedesk/venuedesk/internal/venuedesk/engine"
	"github.com/venuedesk/venuedesk/internal/venuedesk/session"
	"github.com/venuedesk/venuedesk/internal/venuedesk/store"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string

	// CatalogPath is the YAML file describing rooms, products and blocked
	// dates. Required.
	CatalogPath string

	// HTTPAddr is the TCP address for the HTTP API (e.g. ":8080").
	HTTPAddr string

	// ApprovalWebhookURL, when non-empty, receives a POST for every draft
	// queued for operator approval. ApprovalWebhookToken is sent as a
	// bearer token when set.
	ApprovalWebhookURL   string
	ApprovalWebhookToken string

	// LLMAPIKey enables the LLM classification path. When empty the engine
	// runs on the deterministic rule classifier alone.
	LLMAPIKey   string
	LLMEndpoint string
	LLMModel    string
	LLMTimeout  time.Duration

	// RateLimitPerMinute caps classifier calls per sender. Zero uses the
	// value from the runtime config store, falling back to the classify
	// package default.
	RateLimitPerMinute int

	// DraftTTL is how long a queued draft waits for a decision before it
	// expires. Zero uses the config store value or the approvals default.
	DraftTTL time.Duration

	// SessionIdleTTL is how long an idle booking session is kept before the
	// sweeper drops it.
	SessionIdleTTL time.Duration
}

// App is the assembled venuedesk service.
type App struct {
	config      *Config
	store       *store.Store
	configStore vdconfig.Store
	catalog     catalog.Catalog
	gate        *approvals.Gate
	engine      *engine.Engine
	server      *Server
	cron        *cron.Cron
}

// New wires the application from config. The runtime config store can
// override thresholds, rate limits and TTLs at startup without a redeploy.
func New(config *Config) (*App, error) {
	slog.Info("opening database", "path", config.DatabasePath)
	st, err := store.New(config.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	cat, err := catalog.LoadFile(config.CatalogPath)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	slog.Info("catalog loaded", "rooms", len(cat.Rooms()), "products", len(cat.Products()))

	configStore := vdconfig.New(st)
	ctx := context.Background()

	// Operator-tunable knobs: explicit config wins, then the config table,
	// then package defaults.
	thresholds := classify.Thresholds{
		High: configStore.FloatOr(ctx, vdconfig.KeyHighConfidence, 0),
		Mid:  configStore.FloatOr(ctx, vdconfig.KeyMidConfidence, 0),
	}
	rateLimit := config.RateLimitPerMinute
	if rateLimit == 0 {
		rateLimit = configStore.IntOr(ctx, vdconfig.KeyRateLimit, classify.DefaultRateLimit)
	}
	draftTTL := config.DraftTTL
	if draftTTL == 0 {
		draftTTL = configStore.DurationOr(ctx, vdconfig.KeyDraftTTL, 0)
	}
	sessionTTL := config.SessionIdleTTL
	if sessionTTL == 0 {
		sessionTTL = configStore.DurationOr(ctx, vdconfig.KeySessionTTL, 0)
	}

	// Approval gate. Drafts are delivered to the operator surface via
	// webhook when configured; otherwise they sit in the store for polling.
	var notifier approvals.Notifier = approvals.NopNotifier{}
	if config.ApprovalWebhookURL != "" {
		notifier = approvals.NewWebhookNotifier(config.ApprovalWebhookURL, config.ApprovalWebhookToken)
		slog.Info("approval webhook notifier ready", "url", config.ApprovalWebhookURL)
	}
	gate := approvals.NewGate(approvals.NewStore(st.DB()), notifier, draftTTL)

	// Classifier. The rule path always exists; the LLM path is layered on
	// top when a key is present. The fallback provider answers rate-limited
	// senders and must stay deterministic.
	rules := classify.NewRules()
	fallback := classify.NewHybrid(nil, rules, thresholds, 0)
	classifier := classify.Provider(fallback)
	if config.LLMAPIKey != "" {
		llm, err := classify.NewLLM(classify.LLMConfig{
			APIKey:  config.LLMAPIKey,
			BaseURL: config.LLMEndpoint,
			Model:   config.LLMModel,
			Timeout: config.LLMTimeout,
		})
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to initialize LLM classifier: %w", err)
		}
		classifier = classify.NewHybrid(llm, rules, thresholds, config.LLMTimeout)
		slog.Info("hybrid classifier ready", "model", config.LLMModel)
	} else {
		slog.Info("no LLM API key; running on the rule classifier alone")
	}

	eng := engine.New(st, gate, classifier, fallback, cat, engine.Options{
		Limiter:  classify.NewRateLimiter(rateLimit, time.Minute),
		Sessions: session.NewRegistry(sessionTTL),
	})

	var server *Server
	if config.HTTPAddr != "" {
		server = NewServer(config.HTTPAddr, eng, st, gate)
		slog.Info("http api configured", "addr", config.HTTPAddr)
	}

	return &App{
		config:      config,
		store:       st,
		configStore: configStore,
		catalog:     cat,
		gate:        gate,
		engine:      eng,
		server:      server,
		cron:        cron.New(),
	}, nil
}

// Engine exposes the negotiation engine, mainly for embedding callers and
// tests.
func (a *App) Engine() *engine.Engine { return a.engine }

// Run starts the HTTP server and maintenance jobs, then blocks until an
// interrupt or SIGTERM arrives.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if a.server != nil {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("failed to start http server: %w", err)
		}
	}

	// Maintenance: expire stale drafts and drop idle sessions.
	if _, err := a.cron.AddFunc("@every 10m", func() {
		expireCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		n, err := a.gate.CheckExpiry(expireCtx)
		if err != nil {
			slog.Warn("draft expiry sweep failed", "err", err)
		} else if n > 0 {
			slog.Info("expired stale drafts", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule draft expiry: %w", err)
	}
	if _, err := a.cron.AddFunc("@hourly", func() {
		if n := a.engine.Sessions().Sweep(); n > 0 {
			slog.Info("swept idle sessions", "count", n)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}
	a.cron.Start()

	slog.Info("venuedesk is running; press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	slog.Info("shutting down")
	return nil
}

// Stop stops the maintenance jobs and HTTP server and closes the database.
func (a *App) Stop() {
	stopCtx := a.cron.Stop()
	<-stopCtx.Done()

	if a.server != nil {
		slog.Info("stopping http server")
		a.server.Stop()
	}

	slog.Info("closing database")
	a.store.Close()
}
