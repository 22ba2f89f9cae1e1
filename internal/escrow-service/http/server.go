package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/internal/escrow-service/dto"
	"github.com/radieske/bet-escrow-poc/internal/shared/httpx"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

// Escrow são as operações do engine usadas pela API
type Escrow interface {
	PublishBet(ctx context.Context, call escrow.Call, name, conditions string, price escrow.Amount) (escrow.Record, error)
	AcceptBet(ctx context.Context, call escrow.Call, id uint64) (escrow.Record, error)
	ResolveBet(ctx context.Context, call escrow.Call, id uint64, outcomeFavorsChallenger bool) (escrow.Record, error)
	NumberOfBets(ctx context.Context) (uint64, error)
	AvailableBets(ctx context.Context) ([]uint64, error)
	Bet(ctx context.Context, id uint64) (escrow.Bet, error)
	Records(after uint64) []escrow.Record
}

// BetCache é o cache de leitura do GET /bets/{id}
type BetCache interface {
	Get(ctx context.Context, id uint64) (escrow.Bet, bool, error)
	Set(ctx context.Context, bet escrow.Bet) error
}

type Server struct {
	log    *zap.Logger
	escrow Escrow
	cache  BetCache
	ws     http.HandlerFunc
}

// NewServer: cache e ws são opcionais (nil desliga)
func NewServer(log *zap.Logger, e Escrow, c BetCache, ws http.HandlerFunc) *Server {
	return &Server{log: log, escrow: e, cache: c, ws: ws}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestID)
	r.Use(httpx.AccessLog(s.log))

	r.Post("/bets", s.publishBet)
	r.Get("/bets/count", s.count)
	r.Get("/bets/available", s.available)
	r.Get("/bets/{id}", s.getBet)
	r.Post("/bets/{id}/accept", s.acceptBet)
	r.Post("/bets/{id}/resolve", s.resolveBet)
	r.Get("/records", s.records)
	if s.ws != nil {
		r.Get("/ws", s.ws)
	}
	return r
}

func (s *Server) publishBet(w http.ResponseWriter, r *http.Request) {
	var req dto.PublishBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return
	}
	from, err := escrow.ParseIdentity(req.From)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.escrow.PublishBet(r.Context(), escrow.Call{From: from, Value: req.Value}, req.Name, req.Conditions, req.Price)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, rec.Event())
}

func (s *Server) acceptBet(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}
	var req dto.AcceptBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return
	}
	from, err := escrow.ParseIdentity(req.From)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.escrow.AcceptBet(r.Context(), escrow.Call{From: from, Value: req.Value}, id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec.Event())
}

func (s *Server) resolveBet(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}
	var req dto.ResolveBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "bad json")
		return
	}
	from, err := escrow.ParseIdentity(req.From)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.escrow.ResolveBet(r.Context(), escrow.Call{From: from, Value: req.Value}, id, req.OutcomeFavorsChallenger)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, rec.Event())
}

func (s *Server) count(w http.ResponseWriter, r *http.Request) {
	n, err := s.escrow.NumberOfBets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, dto.CountResponse{Count: n})
}

func (s *Server) available(w http.ResponseWriter, r *http.Request) {
	ids, err := s.escrow.AvailableBets(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if ids == nil {
		ids = []uint64{}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.AvailableResponse{IDs: ids})
}

// getBet lê do cache quando possível; o cache é invalidado a cada transição
func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	id, ok := betID(w, r)
	if !ok {
		return
	}

	if s.cache != nil {
		if bet, hit, err := s.cache.Get(r.Context(), id); err == nil && hit {
			httpx.WriteJSON(w, http.StatusOK, dto.FromBet(bet))
			return
		}
	}

	bet, err := s.escrow.Bet(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.cache != nil {
		if err := s.cache.Set(r.Context(), bet); err != nil {
			s.log.Warn("bet cache set", zap.Uint64("bet_id", id), zap.Error(err))
		}
	}
	httpx.WriteJSON(w, http.StatusOK, dto.FromBet(bet))
}

func (s *Server) records(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "after must be a non-negative integer")
			return
		}
		after = n
	}

	recs := s.escrow.Records(after)
	out := dto.RecordsResponse{Records: make([]events.EscrowTransition, 0, len(recs))}
	for _, rec := range recs {
		out.Records = append(out.Records, rec.Event())
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

func betID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid bet id")
		return 0, false
	}
	return id, true
}

func badRequest(w http.ResponseWriter, msg string) {
	httpx.WriteJSON(w, http.StatusBadRequest, dto.ErrorResponse{Error: "bad_request", Message: msg})
}

// StatusFor mapeia o erro do domínio para o status HTTP
func StatusFor(err error) int {
	switch {
	case errors.Is(err, escrow.ErrUnknownBet):
		return http.StatusNotFound
	case errors.Is(err, escrow.ErrUnauthorized), errors.Is(err, escrow.ErrSelfAcceptance):
		return http.StatusForbidden
	case errors.Is(err, escrow.ErrValueMismatch), errors.Is(err, escrow.ErrInvalidPrice):
		return http.StatusUnprocessableEntity
	case errors.Is(err, escrow.ErrAlreadyAccepted),
		errors.Is(err, escrow.ErrNotYetAccepted),
		errors.Is(err, escrow.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, escrow.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, escrow.ErrInvalidCaller):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.log.Error("escrow request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", httpx.RequestIDFrom(r.Context())),
			zap.Error(err))
		msg = "internal error"
	}
	httpx.WriteJSON(w, status, dto.ErrorResponse{Error: escrow.Code(err), Message: msg})
}
