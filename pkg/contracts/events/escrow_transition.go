package events

import "time"

// Tipos de transição publicados no tópico "escrow_transitions".
const (
	KindPublishBet = "LogPublishBet"
	KindAcceptBet  = "LogAcceptBet"
	KindResolveBet = "LogResolveBet"
)

// EscrowTransition é o record de uma transição de aposta, como trafega no Kafka
// e no feed ao vivo. Endereços em hex (0x...), valores em unidades mínimas.
type EscrowTransition struct {
	Seq        uint64    `json:"seq"`
	Kind       string    `json:"kind"`
	BetID      uint64    `json:"bet_id"`
	Challenger string    `json:"challenger"`
	Accepter   string    `json:"accepter,omitempty"`
	Name       string    `json:"name"`
	Price      int64     `json:"price,omitempty"`  // publish/accept
	Payout     int64     `json:"payout,omitempty"` // resolve
	Winner     string    `json:"winner,omitempty"` // resolve
	At         time.Time `json:"at"`
	TsUnixMs   int64     `json:"ts_unix_ms"`
}
