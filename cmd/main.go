package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"labloans/internal/config"
	"labloans/internal/database"
	"labloans/internal/handlers"
	"labloans/internal/logger"
	"labloans/internal/metrics"
	"labloans/internal/middleware"
	"labloans/internal/repositories"
	"labloans/internal/services"
)

func main() {
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(log)
	if err != nil {
		log.Fatal("invalid configuration", "error", err)
	}
	if cfg.LogMode == "prod" || cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		log.Fatal("failed to connect database", "error", err)
	}
	if cfg.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			log.Fatal("failed to migrate database", "error", err)
		}
		log.Info("Database migrated")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	userRepo := repositories.NewUserRepository(db)
	materialRepo := repositories.NewMaterialRepository(db)
	loanRepo := repositories.NewLoanRepository(db)
	reservationRepo := repositories.NewReservationRepository(db)
	roomRepo := repositories.NewRoomRepository(db)
	subjectRepo := repositories.NewSubjectRepository(db)
	reportRepo := repositories.NewPracticeReportRepository(db)

	ledger := services.NewInventoryLedger(materialRepo, log, m)
	loanService := services.NewLoanService(db, loanRepo, materialRepo, ledger, log, m)
	reservationService := services.NewReservationService(db, reservationRepo, roomRepo, log)
	catalogService := services.NewCatalogService(db, materialRepo, roomRepo, subjectRepo, reportRepo, ledger, log)
	userService := services.NewUserService(db, userRepo, log)

	auth := middleware.NewAuthMiddleware(log, userService, cfg.JWTSecret)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.CORSOrigins))
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.Metrics(m))

	deps := handlers.Deps{
		Loans:        loanService,
		Reservations: reservationService,
		Catalog:      catalogService,
		Users:        userService,
		Auth:         auth.RequireAuth(),
		Health: func(ctx context.Context) error {
			return database.Ping(ctx, db)
		},
		Log: log,
	}
	if m != nil {
		deps.Metrics = m.Handler()
	}
	handlers.RegisterRoutes(router, deps)

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	go func() {
		log.Info("Starting server", "addr", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("Server stopped")
}
