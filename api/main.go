package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/slack-go/slack/socketmode"

	"github.com/quantline/strata/agent/pkg/dataapi"
	"github.com/quantline/strata/agent/pkg/knowledge"
	"github.com/quantline/strata/agent/pkg/workflow"
	"github.com/quantline/strata/api/config"
	"github.com/quantline/strata/api/handlers"
	"github.com/quantline/strata/api/metrics"
	slackbot "github.com/quantline/strata/slack/bot"
)

var (
	// Set by LDFLAGS
	version = "dev"
	commit  = "none"
	date    = "unknown"

	// shuttingDown is set to true when shutdown signal is received.
	// Readiness probe checks this to immediately return 503.
	shuttingDown atomic.Bool
)

const defaultMetricsAddr = "0.0.0.0:0"

func main() {
	metricsAddrFlag := flag.String("metrics-addr", defaultMetricsAddr, "Address to listen on for prometheus metrics")
	flag.Parse()

	log.Printf("Starting strata-api version=%s commit=%s date=%s", version, commit, date)
	handlers.SetBuildInfo(version, commit, date)

	// Load .env files if they exist
	// godotenv doesn't override existing env vars, so later files don't overwrite earlier ones
	_ = godotenv.Load()           // .env in current working directory
	_ = godotenv.Load("api/.env") // api/.env when running from repo root

	// Initialize Sentry for error tracking (optional - gracefully no-op if DSN not set)
	sentryDSN := os.Getenv("SENTRY_DSN")
	if sentryDSN != "" {
		sentryEnv := os.Getenv("SENTRY_ENVIRONMENT")
		if sentryEnv == "" {
			sentryEnv = "development"
		}
		release := version
		if commit != "none" {
			release = version + "-" + commit
		}
		// TracesSampleRate: 1.0 for development, 0.1 (10%) otherwise
		tracesSampleRate := 0.1
		if sentryEnv == "development" {
			tracesSampleRate = 1.0
		}
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              sentryDSN,
			Environment:      sentryEnv,
			Release:          release,
			EnableTracing:    true,
			TracesSampleRate: tracesSampleRate,
		})
		if err != nil {
			log.Printf("Warning: Sentry initialization failed: %v", err)
		} else {
			log.Printf("Sentry initialized (env=%s, release=%s)", sentryEnv, release)
			defer sentry.Flush(2 * time.Second)
		}
	}

	// Load ClickHouse (skipped in mem-store mode)
	if err := config.Load(); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	defer config.Close()

	// Load PostgreSQL for session persistence (optional)
	if err := config.LoadPostgres(); err != nil {
		log.Fatalf("Failed to load PostgreSQL: %v", err)
	}
	defer config.ClosePostgres()

	logger := slog.Default()

	// Knowledge base: latest S3 snapshot when configured, baked-in defaults otherwise
	kb := loadKnowledgeBase(logger)

	// Data store: in-memory synthetic data or ClickHouse fact tables
	var store dataapi.Store
	if config.UseMemStore() {
		log.Printf("Using in-memory data store (STRATA_STORE=mem)")
		store = dataapi.NewMemStore(kb, logger)
	} else {
		store = dataapi.NewCHStore(config.DB, logger)
	}

	runner := buildRunner(kb, store, logger)
	handlers.Init(kb, runner)

	// Start metrics server
	var metricsServer *http.Server
	if *metricsAddrFlag != "" {
		metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)
		listener, err := net.Listen("tcp", *metricsAddrFlag)
		if err != nil {
			log.Printf("Failed to start prometheus metrics server listener: %v", err)
		} else {
			log.Printf("Prometheus metrics server listening on %s", listener.Addr().String())
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			metricsServer = &http.Server{Handler: mux}
			go func() {
				if err := metricsServer.Serve(listener); err != nil && err != http.ErrServerClosed {
					log.Printf("Metrics server error: %v", err)
				}
			}()
		}
	}

	r := chi.NewRouter()

	r.Use(middleware.Logger)

	// Sentry middleware for error and performance monitoring (before Recoverer to capture panics)
	if sentryDSN != "" {
		sentryHandler := sentryhttp.New(sentryhttp.Options{
			Repanic: true, // Re-panic after capturing so Recoverer can handle it
		})
		r.Use(sentryHandler.Handle)

		// Set transaction name from Chi route pattern
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if txn := sentry.TransactionFromContext(r.Context()); txn != nil {
					if rctx := chi.RouteContext(r.Context()); rctx != nil {
						if pattern := rctx.RoutePattern(); pattern != "" {
							txn.Name = r.Method + " " + pattern
						} else {
							txn.Name = r.Method + " " + r.URL.Path
						}
					}
				}
				next.ServeHTTP(w, r)
			})
		})
	}

	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	// CORS configuration - origins from env or allow all
	corsOrigins := []string{"*"}
	if origins := os.Getenv("CORS_ORIGINS"); origins != "" {
		corsOrigins = strings.Split(origins, ",")
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check endpoints
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// Immediately fail if shutting down
		if shuttingDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("shutting down"))
			return
		}

		if !config.UseMemStore() {
			ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel()
			if err := config.DB.Ping(ctx); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte("database connection failed: " + err.Error()))
				return
			}
		}

		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Get("/api/config", handlers.GetConfig)
	r.Get("/api/version", handlers.GetVersion)
	r.Get("/api/vocabulary", handlers.GetVocabulary)

	r.Post("/api/ask", handlers.Ask)
	r.Post("/api/ask/stream", handlers.AskStream)

	r.Get("/api/sessions", handlers.ListSessions)
	r.Post("/api/sessions", handlers.CreateSession)
	r.Get("/api/sessions/{id}", handlers.GetSession)
	r.Delete("/api/sessions/{id}", handlers.DeleteSession)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled for SSE streaming endpoints
		IdleTimeout:  60 * time.Second,
	}

	// Channel to listen for shutdown signals
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Create a cancellable context for all requests - this allows us to signal
	// SSE connections to close during shutdown (http.Server.Shutdown does NOT
	// cancel request contexts by default)
	serverCtx, serverCancel := context.WithCancel(context.Background())
	server.BaseContext = func(_ net.Listener) context.Context {
		return serverCtx
	}

	go func() {
		log.Printf("API server starting on :%s", port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Start Slack bot if configured
	var slackEventHandler *slackbot.EventHandler
	if os.Getenv("SLACK_BOT_TOKEN") != "" {
		slackEventHandler = startSlackBot(serverCtx, r, kb, store)
	}

	// Wait for shutdown signal
	sig := <-shutdown
	log.Printf("Received signal %v, shutting down gracefully...", sig)

	// Immediately mark as shutting down so readiness probe returns 503
	shuttingDown.Store(true)

	// Stop Slack bot if running (before cancelling server context)
	if slackEventHandler != nil {
		log.Println("Stopping Slack bot...")
		shutdownComplete := slackEventHandler.StopAcceptingNew()
		waitDone := make(chan struct{})
		go func() {
			shutdownComplete()
			close(waitDone)
		}()
		select {
		case <-waitDone:
			log.Println("Slack bot stopped gracefully")
		case <-time.After(30 * time.Second):
			log.Println("Slack bot shutdown timed out")
		}
	}

	// Cancel the server context to signal SSE connections to close
	serverCancel()

	// Give existing connections a short time to complete after context cancellation
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Graceful shutdown error: %v", err)
	} else {
		log.Println("Server stopped gracefully")
	}

	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Printf("Metrics server shutdown error: %v", err)
		} else {
			log.Println("Metrics server stopped gracefully")
		}
	}
}

// loadKnowledgeBase loads the latest S3 snapshot when KNOWLEDGE_S3_BUCKET is
// set, falling back to the baked-in defaults.
func loadKnowledgeBase(logger *slog.Logger) *knowledge.Base {
	bucket := os.Getenv("KNOWLEDGE_S3_BUCKET")
	if bucket == "" {
		return knowledge.Default()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	loader, err := knowledge.NewS3Loader(ctx, knowledge.S3LoaderConfig{
		Bucket:      bucket,
		Prefix:      os.Getenv("KNOWLEDGE_S3_PREFIX"),
		Region:      os.Getenv("AWS_REGION"),
		EndpointURL: os.Getenv("KNOWLEDGE_S3_ENDPOINT"),
		Logger:      logger,
	})
	if err != nil {
		log.Printf("Warning: knowledge snapshot loader unavailable, using defaults: %v", err)
		return knowledge.Default()
	}
	kb, err := loader.LoadLatest(ctx)
	if err != nil {
		log.Printf("Warning: failed to load knowledge snapshot, using defaults: %v", err)
		return knowledge.Default()
	}
	if err := kb.Validate(); err != nil {
		log.Printf("Warning: knowledge snapshot invalid, using defaults: %v", err)
		return knowledge.Default()
	}
	log.Printf("Loaded knowledge snapshot from s3://%s", bucket)
	return kb
}

// buildRunner wires the question-answering workflow for the HTTP API.
func buildRunner(kb *knowledge.Base, store dataapi.Store, logger *slog.Logger) *workflow.Runner {
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		log.Fatalf("ANTHROPIC_API_KEY is required")
	}

	model := anthropic.ModelClaudeHaiku4_5
	if m := os.Getenv("ANTHROPIC_MODEL"); m != "" {
		model = anthropic.Model(m)
	}

	runner, err := workflow.NewRunner(workflow.Config{
		Logger: logger,
		LLM:    workflow.NewAnthropicLLMClient(model, 4096),
		KB:     kb,
		Store:  store,
	})
	if err != nil {
		log.Fatalf("Failed to build workflow: %v", err)
	}
	return runner
}

// startSlackBot initializes and starts the Slack bot in the background.
// Returns the event handler for graceful shutdown, or nil if startup fails.
func startSlackBot(ctx context.Context, r *chi.Mux, kb *knowledge.Base, store dataapi.Store) *slackbot.EventHandler {
	cfg, err := slackbot.LoadFromEnv("")
	if err != nil {
		log.Printf("Slack bot config error: %v (bot will not start)", err)
		return nil
	}

	slackClient := slackbot.NewClient(cfg.BotToken, cfg.AppToken, slog.Default())
	botUserID, err := slackClient.Initialize(ctx)
	if err != nil {
		log.Printf("Slack auth test failed, continuing anyway: %v", err)
	}
	cfg.BotUserID = botUserID

	// Direct in-process workflow calls instead of HTTP
	runner, err := slackbot.NewWorkflowRunner(kb, store, slog.Default())
	if err != nil {
		log.Printf("Slack workflow runner error: %v (bot will not start)", err)
		return nil
	}

	convManager := slackbot.NewManager(slog.Default())
	convManager.StartCleanup(ctx)

	msgProcessor := slackbot.NewProcessor(
		slackClient,
		runner,
		convManager,
		slog.Default(),
		cfg.WebBaseURL,
	)
	msgProcessor.StartCleanup(ctx)

	eventHandler := slackbot.NewEventHandler(
		slackClient,
		msgProcessor,
		convManager,
		slog.Default(),
		cfg.BotUserID,
		ctx,
	)
	eventHandler.StartCleanup(ctx)

	if cfg.Mode == slackbot.ModeSocket {
		// Socket mode: run in background goroutine
		api := slackClient.API()
		client := socketmode.New(api)

		go func() {
			if err := client.Run(); err != nil {
				log.Printf("Slack socket mode client error: %v", err)
			}
		}()
		go func() {
			if err := eventHandler.HandleSocketMode(ctx, client); err != nil {
				log.Printf("Slack socket mode handler stopped: %v", err)
			}
		}()

		log.Println("Slack bot started in socket mode")
	} else {
		// HTTP mode: add /slack/events route to the existing router
		r.Post("/slack/events", func(w http.ResponseWriter, r *http.Request) {
			eventHandler.HandleHTTP(w, r, cfg.SigningSecret)
		})

		log.Println("Slack bot started in HTTP mode (route: /slack/events)")
	}

	return eventHandler
}
