package wallet

// HoldRequest é o payload de capture/refund/payout no wallet-service.
type HoldRequest struct {
	BetID   uint64 `json:"betId"`
	Address string `json:"address"`
	Amount  int64  `json:"amount"`
}

// HoldResponse devolve o total que segue em custódia para a aposta.
type HoldResponse struct {
	BetID uint64 `json:"betId"`
	Held  int64  `json:"held"`
}

// ErrorResponse é o corpo padrão de erro dos serviços.
type ErrorResponse struct {
	Code    string `json:"error"`
	Message string `json:"message"`
}
