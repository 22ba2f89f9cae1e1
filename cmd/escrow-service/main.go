package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	betcache "github.com/radieske/bet-escrow-poc/internal/escrow-service/cache"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/feed"
	ehttp "github.com/radieske/bet-escrow-poc/internal/escrow-service/http"
	emetrics "github.com/radieske/bet-escrow-poc/internal/escrow-service/metrics"
	kpub "github.com/radieske/bet-escrow-poc/internal/escrow-service/producer"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/repo"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/wallet"
	sharedcache "github.com/radieske/bet-escrow-poc/internal/shared/cache"
	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/kafka"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, logger.WithFile(cfg.LogFile))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// referee é fixo para toda a vida do processo
	referee, err := escrow.ParseIdentity(cfg.RefereeAddress)
	if err != nil {
		log.Fatal("REFEREE_ADDRESS", zap.String("value", cfg.RefereeAddress), zap.Error(err))
	}

	// Store: Postgres (padrão) ou memória (dev)
	var (
		store escrow.Store
		pg    *sql.DB
	)
	switch cfg.EscrowStore {
	case "memory":
		store = escrow.NewMemoryStore()
		log.Warn("using in-memory bet store; state is lost on restart")
	default:
		pg, err = db.ConnectPostgres(cfg.PostgresDSN)
		if err != nil {
			log.Fatal("pg", zap.Error(err))
		}
		defer pg.Close()
		pgStore := repo.NewPostgres(pg)
		if err := pgStore.Migrate(ctx); err != nil {
			log.Fatal("migrate", zap.Error(err))
		}
		store = pgStore
	}

	// Redis: cache de snapshots e feed entre réplicas
	rdb, err := sharedcache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Kafka writer (topic escrow_transitions)
	if cfg.Env == "local" {
		if err := kafka.EnsureTopic(ctx, cfg.KafkaBrokers, cfg.TopicEscrowTransitions); err != nil {
			log.Warn("ensure topic", zap.String("topic", cfg.TopicEscrowTransitions), zap.Error(err))
		}
	}
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEscrowTransitions)
	defer writer.Close()

	// deps
	bets := betcache.New(rdb, cfg.BetCacheTTL)
	hub := feed.NewHub(log, func(*http.Request) bool { return true })
	feed.StartRedisSubscriber(ctx, log, rdb, cfg.RedisFeedChannel, hub)
	m := emetrics.New(prometheus.DefaultRegisterer)

	// ordem: invalida o cache, avisa o feed e só então escreve no Kafka
	publ := escrow.Fanout{
		bets,
		feed.NewRedisPublisher(rdb, cfg.RedisFeedChannel),
		kpub.NewKafkaPublisher(writer, cfg.TopicEscrowTransitions),
	}

	engine, err := escrow.NewEngine(referee, store, wallet.New(cfg.WalletURL),
		escrow.WithLogger(log),
		escrow.WithPublisher(publ),
		escrow.WithObserver(m.Observe),
	)
	if err != nil {
		log.Fatal("engine", zap.Error(err))
	}

	// HTTP público
	api := ehttp.NewServer(log, engine, bets, hub.HandleWS)
	apiSrv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           api.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// metrics/health
	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if pg != nil {
			if err := pg.PingContext(ctx); err != nil {
				return err
			}
		}
		return rdb.Ping(ctx).Err()
	})
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = apiSrv.Shutdown(shutdownCtx)
		_ = metricsSrv.Shutdown(shutdownCtx)
	}()

	log.Info("escrow-service listening",
		zap.String("addr", apiSrv.Addr),
		zap.String("referee", referee.Hex()),
		zap.String("store", cfg.EscrowStore),
	)
	if err := apiSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("api", zap.Error(err))
	}
	log.Info("escrow-service stopped")
}
