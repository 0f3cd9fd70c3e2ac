package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"binarynet/internal/api"
	"binarynet/internal/cache"
	"binarynet/internal/middleware"
	"binarynet/internal/notify"
	"binarynet/internal/repository"
	"binarynet/internal/service"
	"binarynet/pkg/auth"
	"binarynet/pkg/logger"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	err = logger.Initialize(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()
	zapLogger := logger.Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	plan, err := cfg.Plan.ToPlan()
	if err != nil {
		zapLogger.Fatal("Invalid compensation plan", zap.Error(err))
	}

	if err := repository.Migrate(cfg.Database); err != nil {
		zapLogger.Fatal("Failed to migrate database", zap.Error(err))
	}

	repo, err := repository.New(cfg.Database)
	if err != nil {
		zapLogger.Fatal("Failed to initialize repository", zap.Error(err))
	}
	defer repo.Close()

	hub := notify.NewHub()
	notifiers := notify.Fanout{hub}
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramNotifier(cfg.Telegram)
		if err != nil {
			zapLogger.Fatal("Failed to initialize telegram notifier", zap.Error(err))
		}
		go tg.Run(ctx)
		notifiers = append(notifiers, tg)
	}

	var treeCache service.TreeCache
	if cfg.Redis.Addr != "" {
		rdb, err := cache.Connect(ctx, cfg.Redis)
		if err != nil {
			zapLogger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer rdb.Close()
		treeCache = cache.NewTreeCache(rdb, cfg.Redis.TTL)
	}

	jwtAuth := auth.NewJWTAuth(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	svc := service.NewService(repo, plan, service.Options{
		Notifier: notifiers,
		Tokens:   jwtAuth,
		Cache:    treeCache,
	})

	scheduler := cron.New()
	if _, err := svc.ProfitService.Schedule(scheduler, cfg.Plan.WeeklyProfitSchedule); err != nil {
		zapLogger.Fatal("Failed to schedule weekly profit", zap.Error(err))
	}
	scheduler.Start()
	defer scheduler.Stop()

	limiter := middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
	limiter.StartCleanup(10*time.Minute, ctx.Done())

	router := gin.New()
	router.Use(gin.Recovery(), middleware.Metrics())

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{
		http.MethodHead,
		http.MethodGet,
		http.MethodPost,
		http.MethodPut,
		http.MethodPatch,
		http.MethodDelete,
	}
	config.AllowHeaders = []string{"*"}
	config.AllowCredentials = true
	config.MaxAge = 12 * time.Hour

	router.Use(cors.New(config))

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		if err := repo.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authz := middleware.NewAuthorization(svc.UserService)

	a := router.Group("/api/v1")
	a.Use(limiter.Handler())
	api.NewPublicRoutes(a, svc.AdminService)
	api.NewUserRoutes(a, svc.UserService, jwtAuth)
	api.NewReferralRoutes(a, svc.ReferralService, jwtAuth)
	api.NewNetworkRoutes(a, svc.UserService, svc.PlacementService, svc.NetworkService, jwtAuth)
	api.NewInvestmentRoutes(a, svc.InvestmentService, jwtAuth)
	api.NewWithdrawalRoutes(a, svc.WithdrawalService, jwtAuth)
	api.NewFeedRoutes(a, hub, jwtAuth)
	api.NewAdminRoutes(a, api.AdminServices{
		Investments: svc.InvestmentService,
		Withdrawals: svc.WithdrawalService,
		Profit:      svc.ProfitService,
		Placement:   svc.PlacementService,
		Admin:       svc.AdminService,
	}, jwtAuth, authz)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		zapLogger.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("Failed to shut down server", zap.Error(err))
	}
}
