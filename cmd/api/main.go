package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shipzone-sync/config"
	"shipzone-sync/internal/delivery/http/middleware"
	v1 "shipzone-sync/internal/delivery/http/v1"
	"shipzone-sync/internal/domain"
	"shipzone-sync/internal/infrastructure/cache"
	"shipzone-sync/internal/infrastructure/woocommerce"
	memoryrepo "shipzone-sync/internal/repository/memory"
	postgresrepo "shipzone-sync/internal/repository/postgres"
	"shipzone-sync/internal/usecase"
	"shipzone-sync/pkg/logger"
	"shipzone-sync/pkg/storage"
	"shipzone-sync/pkg/utils"

	"github.com/NYTimes/gziphandler"
	"golang.org/x/time/rate"
)

const serviceName = "shipzone-sync"

var version = "dev"

func main() {
	cfg := config.LoadConfig()
	utils.SetSecret(cfg.JWTSecret)

	// Initialize Logger
	logger.Init(cfg.Env, cfg.LogLevel)
	log := logger.Get()

	// State Repository: Postgres when configured, memory otherwise
	var stateRepo domain.ShippingStateRepository
	if cfg.DBUrl != "" {
		pgxPool, err := postgresrepo.NewPgxPool(context.Background(), cfg)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pgxPool.Close()
		if err := postgresrepo.EnsureShippingStateSchema(context.Background(), pgxPool); err != nil {
			log.Fatal().Err(err).Msg("Failed to prepare shipping state table")
		}
		stateRepo = postgresrepo.NewShippingStateRepository(pgxPool)
		log.Info().Msg("Successfully connected to PostgreSQL via pgx")
	} else {
		stateRepo = memoryrepo.NewShippingStateRepository()
		log.Warn().Msg("DB_DSN not set, shipping state is kept in memory")
	}

	// Store Client
	storeLimit := rate.Inf
	if cfg.StoreRateLimit > 0 {
		storeLimit = rate.Limit(cfg.StoreRateLimit)
	}
	storeClient, err := woocommerce.NewClient(
		cfg.StoreBaseURL,
		cfg.StoreConsumerKey,
		cfg.StoreSecret,
		woocommerce.WithHTTPClient(&http.Client{Timeout: cfg.StoreTimeout}),
		woocommerce.WithRateLimit(storeLimit, cfg.StoreRateBurst),
		woocommerce.WithRetry(cfg.StoreMaxRetries, cfg.StoreRetryBudget),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize store client")
	}
	shippingAPI := woocommerce.NewShippingService(storeClient)

	// Report Archive (R2), optional
	var archive domain.ReportArchive
	if cfg.R2Enabled() {
		r2Storage, err := storage.NewR2Storage(
			context.Background(),
			cfg.R2AccountID,
			cfg.R2AccessKeyID,
			cfg.R2AccessKeySecret,
			cfg.R2BucketName,
			cfg.R2PublicURL,
			cfg.R2ReportPrefix,
			cfg.R2UploadTimeout,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize R2 Storage")
		}
		archive = r2Storage
	}

	// Initialize Cache (In-Memory)
	memCache := cache.NewMemoryCache(cfg.SiteID, cfg.CatalogCacheTTL, 2*cfg.CatalogCacheTTL)

	// Shipping Module
	runner := usecase.NewRunner(shippingAPI, cfg.RunnerConcurrency)
	shippingUC := usecase.NewShippingUsecase(cfg.SiteID, shippingAPI, stateRepo, runner, memCache, cfg.CatalogCacheTTL, archive)
	shippingHandler := v1.NewShippingHandler(shippingUC, cfg.SiteID)

	mux := http.NewServeMux()

	adminMiddleware := func(h http.HandlerFunc) http.Handler {
		return middleware.AuthMiddleware(middleware.AdminMiddleware(h))
	}

	// Admin Shipping
	mux.Handle("GET /api/v1/admin/shipping/state", adminMiddleware(shippingHandler.GetState))
	mux.Handle("POST /api/v1/admin/shipping/fetch", adminMiddleware(shippingHandler.Fetch))
	mux.Handle("GET /api/v1/admin/shipping/operations", adminMiddleware(shippingHandler.Operations))
	mux.Handle("POST /api/v1/admin/shipping/submit", adminMiddleware(shippingHandler.Submit))

	mux.Handle("POST /api/v1/admin/shipping/zones", adminMiddleware(shippingHandler.AddZone))
	mux.Handle("POST /api/v1/admin/shipping/zones/{index}/edit", adminMiddleware(shippingHandler.EditZone))
	mux.Handle("DELETE /api/v1/admin/shipping/zones/{index}", adminMiddleware(shippingHandler.RemoveZone))

	mux.Handle("POST /api/v1/admin/shipping/editing/cancel", adminMiddleware(shippingHandler.CancelEditing))
	mux.Handle("POST /api/v1/admin/shipping/editing/close", adminMiddleware(shippingHandler.CloseEditing))
	mux.Handle("PUT /api/v1/admin/shipping/editing/name", adminMiddleware(shippingHandler.RenameZone))
	mux.Handle("POST /api/v1/admin/shipping/editing/locations", adminMiddleware(shippingHandler.AddLocation))
	mux.Handle("DELETE /api/v1/admin/shipping/editing/locations", adminMiddleware(shippingHandler.RemoveLocation))
	mux.Handle("POST /api/v1/admin/shipping/editing/methods", adminMiddleware(shippingHandler.AddMethod))
	mux.Handle("PUT /api/v1/admin/shipping/editing/methods/{index}/type", adminMiddleware(shippingHandler.ChangeMethodType))
	mux.Handle("PATCH /api/v1/admin/shipping/editing/methods/{index}", adminMiddleware(shippingHandler.EditMethod))
	mux.Handle("DELETE /api/v1/admin/shipping/editing/methods/{index}", adminMiddleware(shippingHandler.RemoveMethod))

	// Health Check
	healthHandler := func(w http.ResponseWriter, r *http.Request) {
		utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok", "site": cfg.SiteID})
	}
	mux.HandleFunc("GET /api/v1/health", healthHandler)
	mux.HandleFunc("GET /health", healthHandler) // Support root health check for Load Balancers

	addr := fmt.Sprintf(":%s", cfg.Port)

	// Per-IP rate limit; cleanup every minute, TTL 3 minutes
	rateLimiter := middleware.NewRateLimiter(
		context.Background(),
		rate.Limit(cfg.APIRateLimit),
		cfg.APIRateBurst,
		time.Minute,
		3*time.Minute,
	)

	// Apply CORS, Request Logger, Rate Limit, and Gzip
	handler := middleware.NewCORSMiddleware(cfg)(mux)
	handler = middleware.RequestLogger(handler)
	handler = rateLimiter.Middleware()(handler)
	handler = gziphandler.GzipHandler(handler)

	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
		// Submits wait on the store, so writes get more room than reads.
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	// Graceful Shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	logger.ServiceStart(serviceName, version, cfg.Port)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Server shutting down...")

	rateLimiter.Shutdown()

	// Give an in-flight submit time to finish its current operations.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.ServiceStop(serviceName)
}
