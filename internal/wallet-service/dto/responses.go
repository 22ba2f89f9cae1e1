package dto

type WalletResponse struct {
	Address      string `json:"address"`
	WalletID     string `json:"walletId"`
	BalanceCents int64  `json:"balance_cents"`
}

type HoldResponse struct {
	BetID uint64 `json:"betId"`
	Held  int64  `json:"held"`
}

type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}
