package feed

import "github.com/radieske/bet-escrow-poc/pkg/contracts/events"

// ClientMsg é o que o cliente manda pelo WebSocket
// Type: subscribe | unsubscribe | ping
// BetID 0 significa todas as apostas
type ClientMsg struct {
	Type  string `json:"type"`
	BetID uint64 `json:"betId"`
}

// Update é o envelope enviado aos clientes inscritos
type Update struct {
	BetID   uint64                  `json:"betId"`
	Payload events.EscrowTransition `json:"payload"`
}
