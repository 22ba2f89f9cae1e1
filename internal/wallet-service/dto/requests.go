package dto

type DepositRequest struct {
	Address     string `json:"address"`
	AmountCents int64  `json:"amount_cents"`
	ExternalRef string `json:"external_ref,omitempty"` // opcional, só vai para o ledger
}

// HoldRequest é usado por capture, refund e payout
type HoldRequest struct {
	BetID   uint64 `json:"betId"`
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}
