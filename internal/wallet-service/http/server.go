package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/shared/httpx"
	"github.com/radieske/bet-escrow-poc/internal/wallet-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/wallet-service/repo"
)

// Repo define a interface de operações de carteira e custódia usadas pelo handler HTTP
type Repo interface {
	GetOrCreateWallet(ctx context.Context, address string) (walletID string, balance int64, err error)
	Deposit(ctx context.Context, address string, amount int64, externalRef string) (walletID string, newBalance int64, err error)
	Capture(ctx context.Context, betID uint64, address string, amount int64) (held int64, err error)
	Refund(ctx context.Context, betID uint64, address string, amount int64) (held int64, err error)
	Payout(ctx context.Context, betID uint64, address string, amount int64) error
	Held(ctx context.Context, betID uint64) (int64, error)
}

// Server expõe endpoints HTTP de carteira e custódia
type Server struct {
	log  *zap.Logger
	repo Repo
}

func NewServer(log *zap.Logger, repo Repo) *Server { return &Server{log: log, repo: repo} }

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(s.log))

	r.Get("/wallet", s.getWallet) // ?address=0x...
	r.Post("/wallet/deposit", s.deposit)
	r.Get("/escrow", s.held) // ?betId=N
	r.Post("/escrow/capture", s.capture)
	r.Post("/escrow/refund", s.refund)
	r.Post("/escrow/payout", s.payout)
	return r
}

// normaliza para o formato checksum, que é o que vai para o banco
func address(s string) (string, bool) {
	if !common.IsHexAddress(s) {
		return "", false
	}
	return common.HexToAddress(s).Hex(), true
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	addr, ok := address(r.URL.Query().Get("address"))
	if !ok {
		s.badRequest(w, "valid address required")
		return
	}
	walletID, bal, err := s.repo.GetOrCreateWallet(r.Context(), addr)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.WalletResponse{Address: addr, WalletID: walletID, BalanceCents: bal})
}

func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "bad json")
		return
	}
	addr, ok := address(req.Address)
	if !ok || req.AmountCents <= 0 {
		s.badRequest(w, "invalid payload")
		return
	}
	walletID, bal, err := s.repo.Deposit(r.Context(), addr, req.AmountCents, req.ExternalRef)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.WalletResponse{Address: addr, WalletID: walletID, BalanceCents: bal})
}

func (s *Server) held(w http.ResponseWriter, r *http.Request) {
	betID, err := strconv.ParseUint(r.URL.Query().Get("betId"), 10, 64)
	if err != nil {
		s.badRequest(w, "betId required")
		return
	}
	total, err := s.repo.Held(r.Context(), betID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.HoldResponse{BetID: betID, Held: total})
}

func (s *Server) capture(w http.ResponseWriter, r *http.Request) {
	req, ok := s.holdRequest(w, r)
	if !ok {
		return
	}
	held, err := s.repo.Capture(r.Context(), req.BetID, req.Address, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.HoldResponse{BetID: req.BetID, Held: held})
}

func (s *Server) refund(w http.ResponseWriter, r *http.Request) {
	req, ok := s.holdRequest(w, r)
	if !ok {
		return
	}
	held, err := s.repo.Refund(r.Context(), req.BetID, req.Address, req.Amount)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.HoldResponse{BetID: req.BetID, Held: held})
}

func (s *Server) payout(w http.ResponseWriter, r *http.Request) {
	req, ok := s.holdRequest(w, r)
	if !ok {
		return
	}
	if err := s.repo.Payout(r.Context(), req.BetID, req.Address, req.Amount); err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("escrow payout", zap.Uint64("bet_id", req.BetID), zap.String("to", req.Address), zap.Int64("amount", req.Amount))
	httpx.WriteJSON(w, http.StatusOK, dto.HoldResponse{BetID: req.BetID, Held: 0})
}

func (s *Server) holdRequest(w http.ResponseWriter, r *http.Request) (dto.HoldRequest, bool) {
	var req dto.HoldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.badRequest(w, "bad json")
		return req, false
	}
	addr, ok := address(req.Address)
	if !ok || req.BetID == 0 || req.Amount <= 0 {
		s.badRequest(w, "invalid payload")
		return req, false
	}
	req.Address = addr
	return req, true
}

func (s *Server) badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Code: "bad_request", Message: msg})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, repo.ErrInsufficientFunds):
		httpx.WriteJSON(w, http.StatusPaymentRequired, dto.ErrorResponse{Code: "insufficient_funds", Message: err.Error()})
	case errors.Is(err, repo.ErrHoldMismatch):
		httpx.WriteJSON(w, http.StatusConflict, dto.ErrorResponse{Code: "hold_mismatch", Message: err.Error()})
	case errors.Is(err, repo.ErrNotFound):
		httpx.WriteJSON(w, http.StatusNotFound, dto.ErrorResponse{Code: "not_found", Message: err.Error()})
	default:
		s.log.Error("wallet request failed", zap.String("path", r.URL.Path), zap.Error(err))
		httpx.WriteJSON(w, http.StatusInternalServerError, dto.ErrorResponse{Code: "internal", Message: "internal error"})
	}
}
