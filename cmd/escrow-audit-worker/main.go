package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow-audit/consumer"
	"github.com/radieske/bet-escrow-poc/internal/escrow-audit/repository"
	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/db"
	"github.com/radieske/bet-escrow-poc/internal/shared/kafka"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
)

const groupID = "escrow-audit"

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, logger.WithFile(cfg.LogFile))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Postgres: trilha de auditoria das transições
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()
	repo := repository.NewPostgresRepo(pg)
	if err := repo.Migrate(ctx); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Kafka consumer (grupo escrow-audit) e DLQ
	reader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicEscrowTransitions, groupID)
	defer reader.Close()

	var dlq consumer.Writer
	if cfg.TopicEscrowTransitionsDLQ != "" {
		w := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicEscrowTransitionsDLQ)
		defer w.Close()
		dlq = w
	}

	// Métricas Prometheus por etapa
	consumed := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_audit_messages_consumed_total", Help: "mensagens consumidas"})
	persisted := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_audit_transitions_persisted_total", Help: "transições gravadas"})
	duplicates := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_audit_duplicates_total", Help: "reentregas ignoradas"})
	dead := prometheus.NewCounter(prometheus.CounterOpts{Name: "escrow_audit_dlq_total", Help: "mensagens enviadas para a DLQ"})
	errorsBy := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "escrow_audit_errors_total", Help: "erros por estágio"}, []string{"stage"})
	prometheus.MustRegister(consumed, persisted, duplicates, dead, errorsBy)

	proc := &consumer.Processor{
		Log:         log,
		Reader:      reader,
		Repo:        repo,
		DLQ:         dlq,
		OnConsumed:  func() { consumed.Inc() },
		OnPersist:   func() { persisted.Inc() },
		OnDuplicate: func() { duplicates.Inc() },
		OnDLQ:       func() { dead.Inc() },
		OnError:     func(stage string) { errorsBy.WithLabelValues(stage).Inc() },
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, pg.PingContext)
	defer metricsSrv.Close()
	log.Info("metrics/health listening", zap.String("addr", metricsSrv.Addr))

	log.Info("escrow-audit-worker started",
		zap.String("consume", cfg.TopicEscrowTransitions),
		zap.String("dlq", cfg.TopicEscrowTransitionsDLQ),
	)
	if err := proc.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal("processor stopped with error", zap.Error(err))
	}
	log.Info("escrow-audit-worker stopped")
}
