package dto

import (
	"time"

	"github.com/radieske/bet-escrow-poc/internal/escrow"
	"github.com/radieske/bet-escrow-poc/pkg/contracts/events"
)

type BetResponse struct {
	ID         uint64     `json:"id"`
	Challenger string     `json:"challenger"`
	Accepter   string     `json:"accepter,omitempty"`
	Name       string     `json:"name"`
	Conditions string     `json:"conditions"`
	Price      int64      `json:"price"`
	State      string     `json:"state"`
	Winner     string     `json:"winner,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	AcceptedAt *time.Time `json:"accepted_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
}

// FromBet monta a resposta; endereço zero vira campo ausente
func FromBet(b escrow.Bet) BetResponse {
	out := BetResponse{
		ID:         b.ID,
		Challenger: b.Challenger.Hex(),
		Name:       b.Name,
		Conditions: b.Conditions,
		Price:      b.Price,
		State:      string(b.State),
		CreatedAt:  b.CreatedAt,
	}
	if b.HasAccepter() {
		out.Accepter = b.Accepter.Hex()
	}
	if b.Winner != escrow.NoIdentity {
		out.Winner = b.Winner.Hex()
	}
	if !b.AcceptedAt.IsZero() {
		t := b.AcceptedAt
		out.AcceptedAt = &t
	}
	if !b.ResolvedAt.IsZero() {
		t := b.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

type CountResponse struct {
	Count uint64 `json:"count"`
}

type AvailableResponse struct {
	IDs []uint64 `json:"ids"`
}

type RecordsResponse struct {
	Records []events.EscrowTransition `json:"records"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
