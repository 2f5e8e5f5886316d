// Command butlerd is the personal-assistant core's single process: it
// loads configuration, opens storage, wires the tool registry and
// conversation orchestrator, starts the background workers (task
// scheduler, alert dispatcher, metadata sync loop), and serves webhook
// ingestion until told to shut down.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noble1911/butler/internal/agent"
	"github.com/noble1911/butler/internal/agent/providers"
	"github.com/noble1911/butler/internal/alerting"
	"github.com/noble1911/butler/internal/audit"
	"github.com/noble1911/butler/internal/buildinfo"
	"github.com/noble1911/butler/internal/config"
	"github.com/noble1911/butler/internal/memory"
	"github.com/noble1911/butler/internal/memory/embeddings"
	"github.com/noble1911/butler/internal/memory/embeddings/ollama"
	"github.com/noble1911/butler/internal/memory/embeddings/openai"
	"github.com/noble1911/butler/internal/observability"
	"github.com/noble1911/butler/internal/outbound"
	"github.com/noble1911/butler/internal/storage"
	"github.com/noble1911/butler/internal/syncloop"
	"github.com/noble1911/butler/internal/tasks"
	"github.com/noble1911/butler/internal/tools/calendar"
	"github.com/noble1911/butler/internal/tools/display"
	"github.com/noble1911/butler/internal/tools/facts"
	"github.com/noble1911/butler/internal/tools/health"
	"github.com/noble1911/butler/internal/tools/homeassistant"
	"github.com/noble1911/butler/internal/tools/media"
	"github.com/noble1911/butler/internal/tools/reminders"
	"github.com/noble1911/butler/internal/tools/selfupdate"
	"github.com/noble1911/butler/internal/tools/vectormemory"
	"github.com/noble1911/butler/internal/webhook"
)

// shutdownTimeout bounds how long main waits for in-flight work to drain
// once a shutdown signal arrives, matching the teacher's graceful-stop
// window.
const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("butlerd exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting butlerd", "log_level", cfg.LogLevel, "log_format", cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := storage.Open(ctx, cfg.Storage.DatabaseURL, storage.DefaultPoolConfig())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("close storage", "error", err)
		}
	}()

	auditLogger, err := audit.NewLogger(auditConfigFrom(cfg))
	if err != nil {
		return fmt.Errorf("build audit logger: %w", err)
	}
	defer auditLogger.Close()
	usageRecorder := audit.NewToolUsageRecorder(store.ToolUsage, auditLogger)

	healthGauges := health.NewGauges(prometheus.DefaultRegisterer)
	metrics := observability.NewMetrics()
	tracer, shutdownTracer := observability.NewTracer(observability.TraceConfig{
		ServiceName:    "butlerd",
		ServiceVersion: buildinfo.Version,
		Endpoint:       cfg.TracingOTLPEndpoint,
	})
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Warn("shut down tracer", "error", err)
		}
	}()

	registry := agent.NewToolRegistry()
	if err := registerTools(registry, cfg, store, healthGauges, logger); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	dispatcher := agent.NewDispatcher(usageRecorder).WithMetrics(metrics).WithTracer(tracer)

	provider, err := buildProviderChain(cfg, metrics)
	if err != nil {
		return fmt.Errorf("build LLM provider chain: %w", err)
	}
	// Loop is the conversation orchestrator every channel adapter would
	// drive turns against (spec §4.1); no such adapter is in scope here
	// (front-end PWA/voice/messaging channels are explicitly out of scope),
	// so it is constructed and left ready rather than invoked.
	loop := agent.NewLoop(provider, dispatcher)
	logger.Info("conversation orchestrator ready", "max_tool_rounds", loop.MaxToolRounds)

	outboundTransport := buildOutboundTransport(cfg, logger)
	notifyChannel := outbound.NewChannel(store.Users, outboundTransport, cfg.Outbound.RateLimitMax, cfg.Outbound.RateLimitWindow)

	executor := tasks.NewExecutor(registryInvoker{registry: registry, dispatcher: dispatcher}, taskNotifier{channel: notifyChannel})
	scheduler := tasks.NewScheduler(store.Tasks, executor, cfg.Scheduler.PollInterval, cfg.Scheduler.LockFor,
		tasks.WithLogger(logger), tasks.WithBatch(cfg.Scheduler.ClaimBatch))

	alertDispatcher := alerting.NewDispatcher(store.Alerts, cfg.Alerting.PollInterval, logger,
		alertNotifier{channel: notifyChannel, users: store.Users})

	webhookHandler := webhook.NewHandler(cfg.Webhook.SharedSecret, store.Webhooks, store.Users, webhookSender{channel: notifyChannel}, logger)

	var syncLoop *syncloop.Loop
	if cfg.SyncLoop.LibraryURL != "" {
		client := syncloop.NewHTTPClient(cfg.SyncLoop.LibraryURL, cfg.SyncLoop.LibraryKey)
		syncLoop = syncloop.NewLoop(client, cfg.SyncLoop.Interval, cfg.SyncLoop.MatchDelay, logger)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/webhooks/{source}", webhookHandler)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: cfg.Webhook.ListenAddr, Handler: mux}

	go scheduler.Run(ctx)
	go alertDispatcher.Run(ctx)
	if syncLoop != nil {
		go syncLoop.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("webhook listener started", "addr", cfg.Webhook.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("webhook listener: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shut down webhook listener", "error", err)
	}
	scheduler.Stop()
	alertDispatcher.Stop()
	if syncLoop != nil {
		syncLoop.Stop()
	}

	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func auditConfigFrom(cfg *config.Config) audit.Config {
	ac := audit.DefaultConfig()
	ac.Enabled = true
	ac.IncludeToolInput = true
	ac.IncludeToolOutput = true
	return ac
}

// buildProviderChain wires Anthropic as the primary provider and the
// OpenAI-compatible client as failover, per spec §4.1/§6; either may be
// omitted if its API key is unset, but at least one is guaranteed present
// by config.Validate. Always returns a *agent.FailoverChain, even for a
// single provider, so LLM request metrics are recorded uniformly.
func buildProviderChain(cfg *config.Config, metrics *observability.Metrics) (agent.Provider, error) {
	var chain []agent.Provider

	if cfg.LLM.AnthropicAPIKey != "" {
		p, err := providers.NewAnthropic(providers.AnthropicConfig{
			APIKey:    cfg.LLM.AnthropicAPIKey,
			Model:     cfg.LLM.AnthropicModel,
			MaxTokens: int64(cfg.LLM.MaxTokens),
		})
		if err != nil {
			return nil, fmt.Errorf("build anthropic provider: %w", err)
		}
		chain = append(chain, p)
	}
	if cfg.LLM.OpenAIAPIKey != "" {
		p, err := providers.NewOpenAI(providers.OpenAIConfig{
			APIKey:  cfg.LLM.OpenAIAPIKey,
			Model:   cfg.LLM.OpenAIModel,
			BaseURL: cfg.LLM.OpenAIBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("build openai provider: %w", err)
		}
		chain = append(chain, p)
	}
	if len(chain) == 0 {
		return nil, fmt.Errorf("no LLM provider configured")
	}
	return agent.NewFailoverChain(chain...).WithMetrics(metrics), nil
}

func buildOutboundTransport(cfg *config.Config, logger *slog.Logger) outbound.Transport {
	if cfg.Outbound.TransportURL == "" {
		logger.Warn("OUTBOUND_TRANSPORT_URL not set, outbound notifications will be logged only")
		return loggingTransport{logger: logger}
	}
	return outbound.NewHTTPTransport(cfg.Outbound.TransportURL, cfg.Outbound.TransportKey)
}

// loggingTransport is the transport fallback when no external messaging
// bridge is configured, so the process can still start and exercise the
// eligibility chain (spec §4.6) end to end in development.
type loggingTransport struct {
	logger *slog.Logger
}

func (t loggingTransport) Send(_ context.Context, phone, message string) (outbound.TransportStatus, error) {
	t.logger.Info("outbound notification (no transport configured)", "phone", phone, "message", message)
	return outbound.StatusSent, nil
}

// buildEmbeddingProvider constructs the embedding provider spec §4.3's
// fact store uses for Remember/Recall, chosen by cfg.Embeddings.Provider.
// A construction failure degrades recall to confidence/recency ordering
// rather than failing startup, since embeddings are a supplement, not a
// requirement, of the fact store.
func buildEmbeddingProvider(cfg config.Embeddings, logger *slog.Logger) embeddings.Provider {
	switch cfg.Provider {
	case "ollama":
		p, err := ollama.New(ollama.Config{BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			logger.Warn("build ollama embedding provider, facts will not be embedded", "error", err)
			return nil
		}
		return p
	case "openai", "":
		if cfg.APIKey == "" {
			logger.Warn("no embeddings API key configured, facts will not be embedded")
			return nil
		}
		p, err := openai.New(openai.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model})
		if err != nil {
			logger.Warn("build openai embedding provider, facts will not be embedded", "error", err)
			return nil
		}
		return p
	default:
		logger.Warn("unknown embeddings provider, facts will not be embedded", "provider", cfg.Provider)
		return nil
	}
}

// registerTools builds and registers every tool surface spec §4 names:
// home automation (if configured), fact extraction, semantic memory
// search/write (if an embedding provider is available), reminders, and the
// supplemented system/calendar/media tools (each gated on its own config).
func registerTools(registry *agent.ToolRegistry, cfg *config.Config, store storage.Store, healthGauges *health.Gauges, logger *slog.Logger) error {
	if cfg.HomeAssistantBaseURL != "" {
		haClient, err := homeassistant.NewClient(homeassistant.Config{
			BaseURL: cfg.HomeAssistantBaseURL,
			Token:   cfg.HomeAssistantToken,
		})
		if err != nil {
			return fmt.Errorf("build home assistant client: %w", err)
		}
		if err := registry.Register(homeassistant.NewCallServiceTool(haClient), ""); err != nil {
			return err
		}
		if err := registry.Register(homeassistant.NewGetStateTool(haClient), ""); err != nil {
			return err
		}
		if err := registry.Register(homeassistant.NewListEntitiesTool(haClient), ""); err != nil {
			return err
		}
	}

	if err := registry.Register(facts.NewExtractTool(10), ""); err != nil {
		return err
	}

	embedder := buildEmbeddingProvider(cfg.Embeddings, logger)

	factStore := memory.NewFactStore(store.Users, store.Facts, embedder)
	if err := registry.Register(facts.NewRememberTool(factStore), ""); err != nil {
		return err
	}
	if err := registry.Register(facts.NewRecallTool(factStore), ""); err != nil {
		return err
	}

	if embedder != nil {
		memCfg := &memory.Config{
			Enabled:   true,
			Backend:   "sqlite-vec",
			Dimension: embedder.Dimension(),
			SQLiteVec: memory.SQLiteVecConfig{Path: "butler-memory.db"},
			Embeddings: memory.EmbeddingsConfig{
				Provider:  cfg.Embeddings.Provider,
				APIKey:    cfg.Embeddings.APIKey,
				BaseURL:   cfg.Embeddings.BaseURL,
				Model:     cfg.Embeddings.Model,
				OllamaURL: cfg.Embeddings.BaseURL,
			},
		}
		manager, err := memory.NewManager(memCfg)
		if err != nil {
			logger.Warn("build vector memory manager, vectormemory tools disabled", "error", err)
		} else if manager != nil {
			if err := registry.Register(vectormemory.NewSearchTool(manager, memCfg), ""); err != nil {
				return err
			}
			if err := registry.Register(vectormemory.NewWriteTool(manager), ""); err != nil {
				return err
			}
		}
	}

	if err := registry.Register(reminders.NewSetTool(store.Tasks), ""); err != nil {
		return err
	}
	if err := registry.Register(reminders.NewListTool(store.Tasks, store.Users), ""); err != nil {
		return err
	}
	if err := registry.Register(reminders.NewCancelTool(store.Tasks), ""); err != nil {
		return err
	}

	if err := registry.Register(health.NewTool(store, healthGauges), ""); err != nil {
		return err
	}
	if err := registry.Register(display.NewTool(), ""); err != nil {
		return err
	}
	if err := registry.Register(selfupdate.NewTool(), ""); err != nil {
		return err
	}

	if cfg.Calendar.BaseURL != "" {
		calClient, err := calendar.NewClient(calendar.Config{
			ClientID:     cfg.Calendar.ClientID,
			ClientSecret: cfg.Calendar.ClientSecret,
			AuthURL:      cfg.Calendar.AuthURL,
			TokenURL:     cfg.Calendar.TokenURL,
			BaseURL:      cfg.Calendar.BaseURL,
		}, store.OAuthTokens)
		if err != nil {
			return fmt.Errorf("build calendar client: %w", err)
		}
		if err := registry.Register(calendar.NewListEventsTool(calClient), ""); err != nil {
			return err
		}
	}

	if cfg.Media.RadarrURL != "" {
		movieSearch, err := media.NewMovieSearchTool(media.BackendConfig{BaseURL: cfg.Media.RadarrURL, APIKey: cfg.Media.RadarrAPIKey})
		if err != nil {
			return fmt.Errorf("build movie search tool: %w", err)
		}
		if err := registry.Register(movieSearch, ""); err != nil {
			return err
		}
		movieAdd, err := media.NewMovieAddTool(media.BackendConfig{BaseURL: cfg.Media.RadarrURL, APIKey: cfg.Media.RadarrAPIKey}, cfg.Media.RadarrRootFolder, cfg.Media.RadarrProfileID)
		if err != nil {
			return fmt.Errorf("build movie add tool: %w", err)
		}
		if err := registry.Register(movieAdd, ""); err != nil {
			return err
		}
	}
	if cfg.Media.SonarrURL != "" {
		seriesSearch, err := media.NewSeriesSearchTool(media.BackendConfig{BaseURL: cfg.Media.SonarrURL, APIKey: cfg.Media.SonarrAPIKey})
		if err != nil {
			return fmt.Errorf("build series search tool: %w", err)
		}
		if err := registry.Register(seriesSearch, ""); err != nil {
			return err
		}
	}
	if cfg.Media.OverseerrURL != "" {
		request, err := media.NewRequestTool(media.BackendConfig{BaseURL: cfg.Media.OverseerrURL, APIKey: cfg.Media.OverseerrAPIKey})
		if err != nil {
			return fmt.Errorf("build media request tool: %w", err)
		}
		if err := registry.Register(request, ""); err != nil {
			return err
		}
	}

	return nil
}
