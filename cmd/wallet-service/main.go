package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
	whttp "github.com/radieske/bet-escrow-poc/internal/wallet-service/http"
	wrepo "github.com/radieske/bet-escrow-poc/internal/wallet-service/repo"
)

func main() {
	cfg := config.Load()

	// Inicializa logger estruturado
	log, err := logger.New("wallet-service", cfg.Env, logger.WithFile(cfg.LogFile))
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("starting service", zap.String("service", "wallet-service"), zap.String("env", cfg.Env))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres guarda carteiras, holds de custódia e ledger
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("postgres connect", zap.Error(err))
	}
	defer pg.Close()

	repo := wrepo.NewPostgres(pg)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}
	api := whttp.NewServer(log, repo)

	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort, // ex: 8082
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext) // ex: 9098
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = apiSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("api listening", zap.String("addr", apiSrv.Addr))
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api srv", zap.Error(err))
	}
}
