package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/handler"
	"procurement/internal/middleware"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var logHandler slog.Handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	if cfg.GinMode == gin.ReleaseMode {
		logHandler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	logger := slog.New(logHandler)
	slog.SetDefault(logger)
	gin.SetMode(cfg.GinMode)

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.GinMode == gin.DebugMode)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to PostgreSQL")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	companyRepo := repository.NewCompanyRepository(db)
	userRepo := repository.NewUserRepository(db)
	productRepo := repository.NewProductRepository(db)
	cartRepo := repository.NewCartRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	purchaseRepo := repository.NewPurchaseRequestRepository(db)
	auditRepo := repository.NewAuditRepository(db)

	clock := service.SystemClock
	userService := service.NewUserService(userRepo, companyRepo, txManager, cfg.JWTSecret, cfg.TokenTTL, clock)
	catalogService := service.NewCatalogService(productRepo, auditRepo, txManager, clock)
	cartService := service.NewCartService(cartRepo, productRepo, txManager)
	ledgerService := service.NewLedgerService(companyRepo, budgetRepo, purchaseRepo, auditRepo, txManager, clock)
	purchaseService := service.NewPurchaseService(purchaseRepo, cartRepo, auditRepo, txManager, ledgerService, catalogService, wsHub, clock)
	reportService := service.NewReportService(purchaseRepo, cfg.ExportMaxRows)
	auditService := service.NewAuditService(auditRepo)

	auth := middleware.NewAuth(cfg.JWTSecret, cfg.GinMode == gin.ReleaseMode)
	limiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				limiter.Cleanup(now)
			}
		}
	}()

	// Set up Gin Router
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(logger), limiter.Middleware())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	corsConfig.ExposeHeaders = []string{"Content-Disposition"}
	router.Use(cors.New(corsConfig))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": wsHub.ClientCount()})
	})

	// WebSocket endpoint
	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, func(token string) (model.Principal, error) {
			return middleware.ParsePrincipal(token, cfg.JWTSecret)
		})
	})

	// API Routing
	api := router.Group("")
	handler.NewUserHandler(userService, auth, cfg.TokenTTL).RegisterRoutes(api)
	handler.NewProductHandler(catalogService, auth).RegisterRoutes(api)
	handler.NewCartHandler(cartService, auth).RegisterRoutes(api)
	handler.NewPurchaseHandler(purchaseService, auth).RegisterRoutes(api)
	handler.NewBudgetHandler(ledgerService, auth, clock).RegisterRoutes(api)
	handler.NewReportHandler(reportService, auth).RegisterRoutes(api)
	handler.NewAuditHandler(auditService, auth).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("server listening", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("graceful shutdown failed", "error", err)
	}
}
