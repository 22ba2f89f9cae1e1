package main

import (
	"errors"
	"net/http"
	"net/http/httputil"
	"net/url"

	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/shared/config"
	"github.com/radieske/bet-escrow-poc/internal/shared/httpx"
	"github.com/radieske/bet-escrow-poc/internal/shared/logger"
	"github.com/radieske/bet-escrow-poc/internal/shared/metrics"
)

func rp(to string) (*httputil.ReverseProxy, error) {
	u, err := url.Parse(to)
	if err != nil {
		return nil, err
	}
	return httputil.NewSingleHostReverseProxy(u), nil
}

// newRouter monta as rotas públicas. Os endpoints /escrow/* do wallet-service
// movem custódia e ficam só na rede interna.
func newRouter(escrowURL, walletURL string) (http.Handler, error) {
	escrowProxy, err := rp(escrowURL)
	if err != nil {
		return nil, err
	}
	walletProxy, err := rp(walletURL)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()

	// escrow (ex.: /api/bets/1/accept -> escrow-service /bets/1/accept)
	escrowAPI := http.StripPrefix("/api", escrowProxy)
	mux.Handle("/api/bets", escrowAPI)
	mux.Handle("/api/bets/", escrowAPI)
	mux.Handle("/api/records", escrowAPI)
	mux.Handle("/api/ws", escrowAPI)

	// wallet (ex.: /api/wallet/deposit -> wallet-service /wallet/deposit)
	walletAPI := http.StripPrefix("/api", walletProxy)
	mux.Handle("/api/wallet", walletAPI)
	mux.Handle("/api/wallet/", walletAPI)

	return httpx.RequestID(httpx.WithCORS(mux)), nil
}

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env, logger.WithFile(cfg.LogFile))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	h, err := newRouter(cfg.EscrowURL, cfg.WalletURL)
	if err != nil {
		log.Fatal("gateway targets", zap.Error(err))
	}

	metricsSrv := metrics.StartMetricsServer(cfg.MetricsPort, nil)
	log.Info("metrics/health", zap.String("addr", metricsSrv.Addr))

	addr := ":" + cfg.HTTPPort
	log.Info("api-gateway listening",
		zap.String("addr", addr),
		zap.String("escrow", cfg.EscrowURL),
		zap.String("wallet", cfg.WalletURL),
	)
	if err := http.ListenAndServe(addr, httpx.AccessLog(log)(h)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal("gateway failed", zap.Error(err))
	}
}
