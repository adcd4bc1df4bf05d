package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"golang.org/x/sync/errgroup"

	"github.com/well-timeline/backend/internal/api"
	"github.com/well-timeline/backend/internal/config"
	"github.com/well-timeline/backend/internal/events"
	"github.com/well-timeline/backend/internal/extract"
	"github.com/well-timeline/backend/internal/metrics"
	"github.com/well-timeline/backend/internal/normalize"
	"github.com/well-timeline/backend/internal/parser"
	"github.com/well-timeline/backend/internal/persistence"
	"github.com/well-timeline/backend/internal/session"
	"github.com/well-timeline/backend/internal/storage"
	"github.com/well-timeline/backend/internal/web"
	"github.com/well-timeline/backend/internal/wellstate"
)

// Version info (set during build)
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const configFileName = "WellTimeline.config"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath, err := resolveConfigPath()
	if err != nil {
		return err
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	log.SetLevel(parseLogLevel(cfg.Advanced.LogLevel))
	log.SetHeader("${time_rfc3339} ${level}")

	// Ensure all data directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("failed to create directories: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fileStore, err := newFileStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	var sessionStore persistence.Store
	if cfg.Persistence.Enabled {
		store, err := openPersistence(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open session store: %w", err)
		}
		defer store.Close()
		sessionStore = store
	}

	vocab := normalize.DefaultVocabulary()
	if cfg.Domain.VocabularyFile != "" {
		if vocab, err = normalize.LoadVocabulary(cfg.Domain.VocabularyFile); err != nil {
			return fmt.Errorf("failed to load vocabulary: %w", err)
		}
	}
	normalizer := normalize.New(vocab)

	applier := wellstate.NewApplier()
	if applier.Units, err = wellstate.ParseUnitPolicy(cfg.Domain.UnitPolicy); err != nil {
		return err
	}
	applier.Tolerance = cfg.Domain.Tolerance

	var m *metrics.Metrics
	if cfg.Advanced.EnableMetrics {
		m = metrics.New()
	}

	hub := events.NewHub(cfg.Events.HubBuffer)
	publisher := events.Multi{hub}
	if cfg.Events.KafkaEnabled {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokerList(), cfg.Events.KafkaTopic)
		if err != nil {
			log.Warnf("[Events] Kafka disabled: %v", err)
		} else {
			defer kp.Close()
			publisher = append(publisher, kp)
		}
	}

	sessionMgr := session.NewManager(session.Options{
		Extractor:   newExtractor(cfg, normalizer),
		Applier:     applier,
		Store:       sessionStore,
		Publisher:   publisher,
		Metrics:     m,
		MaxSessions: cfg.Processing.MaxSessions,
	})

	e := newServer(cfg, &api.Dependencies{
		Store:                fileStore,
		SessionMgr:           sessionMgr,
		Registry:             parser.GetGlobalRegistry(),
		Applier:              applier,
		Normalizer:           normalizer,
		Hub:                  hub,
		Metrics:              m,
		AllowFileDeletion:    cfg.Security.AllowFileDeletion,
		AllowSessionDeletion: cfg.Security.AllowSessionDeletion,
		AllowedExtensions:    cfg.AllowedExtensions(),
		Version:              Version,
	})

	s := &http.Server{
		Addr:         cfg.GetServerAddr(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	printBanner(cfg, configPath)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := e.StartServer(s); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		runJanitor(gctx, cfg, sessionMgr)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		log.Infof("[Server] Shutting down")
		return e.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func resolveConfigPath() (string, error) {
	if p := os.Getenv("WELL_TIMELINE_CONFIG"); p != "" {
		return p, nil
	}
	// Get the executable's directory for config resolution
	exePath, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("failed to get executable path: %w", err)
	}
	return filepath.Join(filepath.Dir(exePath), configFileName), nil
}

func parseLogLevel(s string) log.Lvl {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return log.DEBUG
	case "warn", "warning":
		return log.WARN
	case "error":
		return log.ERROR
	case "off":
		return log.OFF
	default:
		return log.INFO
	}
}

func newFileStore(ctx context.Context, cfg *config.AppConfig) (storage.Store, error) {
	if strings.EqualFold(cfg.Storage.Backend, "s3") {
		s3cfg := cfg.Storage.S3
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			Prefix:          s3cfg.Prefix,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			PathStyle:       s3cfg.PathStyle,
		})
	}
	return storage.NewLocalStore(cfg.GetUploadDir())
}

func openPersistence(ctx context.Context, cfg *config.AppConfig) (*persistence.SQLStore, error) {
	driver, err := persistence.ParseDriver(cfg.Persistence.Driver)
	if err != nil {
		return nil, err
	}
	return persistence.Open(ctx, driver, cfg.PersistenceDSN(),
		persistence.WithDuckDBThreads(cfg.Advanced.DuckDBThreads),
		persistence.WithDuckDBMemoryLimit(cfg.Advanced.DuckDBMemoryLimit))
}

// newExtractor builds the LLM extractor. Without a usable client sessions
// still work through manual payload submission.
func newExtractor(cfg *config.AppConfig, n *normalize.Normalizer) extract.Extractor {
	if !cfg.LLM.Enabled {
		log.Infof("[Extract] LLM extraction disabled by configuration")
		return extract.Unavailable
	}
	client, err := extract.NewOpenAIClient(extract.Options{
		BaseURL:        cfg.LLM.BaseURL,
		EndpointPath:   cfg.LLM.EndpointPath,
		Model:          cfg.LLM.Model,
		APIKeyEnv:      cfg.LLM.APIKeyEnv,
		TimeoutSeconds: cfg.LLM.TimeoutSeconds,
		Temperature:    cfg.LLM.Temperature,
	})
	if err != nil {
		log.Warnf("[Extract] LLM extraction unavailable: %v", err)
		return extract.Unavailable
	}

	ex := extract.NewLLMExtractor(client, n)
	ex.Mode = extract.ParseDetailMode(cfg.LLM.DetailMode)
	if cfg.LLM.MaxAttempts > 0 {
		ex.MaxAttempts = cfg.LLM.MaxAttempts
	}
	if cfg.LLM.BackoffMillis > 0 {
		ex.Backoff = time.Duration(cfg.LLM.BackoffMillis) * time.Millisecond
	}
	log.Infof("[Extract] Using model %s", client.Model())
	return ex
}

func newServer(cfg *config.AppConfig, deps *api.Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Logger.SetLevel(parseLogLevel(cfg.Advanced.LogLevel))

	// Check if running in embedded mode (frontend built into binary)
	embeddedMode := web.HasEmbeddedFiles()

	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Skipper: func(c echo.Context) bool {
			// Skip logging if disabled in config
			if !cfg.Advanced.EnableRequestLogging {
				return true
			}
			path := c.Request().URL.Path
			return strings.HasSuffix(path, "/keepalive") ||
				strings.HasSuffix(path, "/ws") ||
				path == "/api/health" ||
				path == "/metrics"
		},
	}))

	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		StackSize: 1024 * 4,
	}))

	// Uploads get their own limit; everything else uses the server limit.
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: cfg.Server.BodyLimit,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path == "/api/files/upload"
		},
	}))
	e.Use(middleware.BodyLimitWithConfig(middleware.BodyLimitConfig{
		Limit: cfg.Storage.MaxUploadSize,
		Skipper: func(c echo.Context) bool {
			return c.Request().URL.Path != "/api/files/upload"
		},
	}))

	if cfg.Server.EnableCORS {
		origins := strings.Split(cfg.Server.AllowOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		if len(origins) == 1 && origins[0] == "" {
			origins = []string{"*"}
		}
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: origins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	api.SetupMiddleware(e, deps.Metrics)
	handlers := api.NewHandlers(deps)
	api.RegisterRoutes(e, handlers)
	api.RegisterWebSocketRoutes(e, handlers)

	// Register embedded frontend if available
	if embeddedMode {
		if err := web.RegisterStaticRoutes(e); err != nil {
			log.Warnf("[Server] Failed to register static routes: %v", err)
		}
	}
	return e
}

// runJanitor unloads idle sessions until ctx is done.
func runJanitor(ctx context.Context, cfg *config.AppConfig, sessionMgr *session.Manager) {
	interval := time.Duration(cfg.Processing.CleanupIntervalMinutes) * time.Minute
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	maxAge := time.Duration(cfg.Processing.SessionTimeoutMinutes) * time.Minute

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := sessionMgr.CleanupOldSessions(maxAge); n > 0 {
				log.Infof("[Manager] Unloaded %d idle sessions", n)
			}
		}
	}
}

func printBanner(cfg *config.AppConfig, configPath string) {
	mode := "API only"
	if web.HasEmbeddedFiles() {
		mode = "Embedded viewer"
	}

	fmt.Printf("\n")
	fmt.Printf("╔═══════════════════════════════════════════════════════════╗\n")
	fmt.Printf("║           Well Timeline Server                            ║\n")
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Version:    %-45s║\n", Version)
	fmt.Printf("║  Build Time: %-45s║\n", BuildTime)
	fmt.Printf("║  Mode:       %-45s║\n", mode)
	fmt.Printf("╠═══════════════════════════════════════════════════════════╣\n")
	fmt.Printf("║  Config:    %-46s║\n", configPath)
	fmt.Printf("║  Listen:    http://%-38s║\n", cfg.GetServerAddr())
	fmt.Printf("║  Storage:   %-46s║\n", cfg.Storage.Backend)
	fmt.Printf("║  Sessions:  %-46s║\n", persistenceLabel(cfg))
	fmt.Printf("╚═══════════════════════════════════════════════════════════╝\n")
	fmt.Printf("\n")
}

func persistenceLabel(cfg *config.AppConfig) string {
	if !cfg.Persistence.Enabled {
		return "memory only"
	}
	return cfg.Persistence.Driver
}
