package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/blockon/contracts-service/internal/auth"
	"github.com/blockon/contracts-service/internal/config"
	"github.com/blockon/contracts-service/internal/db"
	"github.com/blockon/contracts-service/internal/excel"
	httphandler "github.com/blockon/contracts-service/internal/http"
	"github.com/blockon/contracts-service/internal/http/middleware"
	"github.com/blockon/contracts-service/internal/ledger"
	"github.com/blockon/contracts-service/internal/logger"
	"github.com/blockon/contracts-service/internal/pdf"
	"github.com/blockon/contracts-service/internal/repository"
	"github.com/blockon/contracts-service/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Environment)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect database")
	}

	ledgerClient, err := ledger.Dial(ctx, cfg.Ledger, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect ledger node")
	}

	if err := os.MkdirAll(cfg.Upload.Dir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare upload directory")
	}

	userRepo := repository.NewUserRepository(database)
	contractRepo := repository.NewContractRepository(database)
	journalRepo := repository.NewJournalRepository(database)

	contractService := service.NewContractService(
		userRepo,
		contractRepo,
		journalRepo,
		ledgerClient,
		pdf.NewGenerator(),
		excel.NewGenerator(),
		cfg,
		log,
	)
	userService := service.NewUserService(userRepo)

	reconciler := service.NewReconciler(
		journalRepo,
		contractRepo,
		ledgerClient,
		cfg.Ledger.ReconcileInterval,
		cfg.Ledger.ConfirmTimeout,
		log,
	)
	go reconciler.Run(ctx)

	tokenParser := auth.NewParser(cfg.Auth.AccessSecret)
	handler := httphandler.NewHandler(contractService, userService, cfg.Upload.Dir, log)
	authMiddleware := middleware.Auth(tokenParser)
	router := httphandler.NewRouter(handler, authMiddleware, cfg.Environment)

	addr := fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting contracts service")

	if err := router.Run(addr); err != nil {
		log.Error().Err(err).Msg("server stopped")
		os.Exit(1)
	}
}
