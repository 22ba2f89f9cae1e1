package escrow

import "errors"

var (
	ErrValueMismatch   = errors.New("attached value does not match bet price")
	ErrUnknownBet      = errors.New("unknown bet")
	ErrAlreadyAccepted = errors.New("bet already accepted")
	ErrSelfAcceptance  = errors.New("challenger cannot accept own bet")
	ErrNotYetAccepted  = errors.New("bet not yet accepted")
	ErrAlreadyResolved = errors.New("bet already resolved")
	ErrUnauthorized    = errors.New("caller is not the referee")

	ErrInvalidPrice      = errors.New("invalid bet price")
	ErrInvalidCaller     = errors.New("invalid caller identity")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

var codes = []struct {
	err  error
	code string
}{
	{ErrValueMismatch, "value_mismatch"},
	{ErrUnknownBet, "unknown_bet"},
	{ErrAlreadyAccepted, "already_accepted"},
	{ErrSelfAcceptance, "self_acceptance"},
	{ErrNotYetAccepted, "not_yet_accepted"},
	{ErrAlreadyResolved, "already_resolved"},
	{ErrUnauthorized, "unauthorized"},
	{ErrInvalidPrice, "invalid_price"},
	{ErrInvalidCaller, "invalid_caller"},
	{ErrInsufficientFunds, "insufficient_funds"},
}

const codeInternal = "internal"

// Code retorna o código estável usado na API e nas métricas.
// Erros de infraestrutura viram "internal"; nil vira "ok".
func Code(err error) string {
	if err == nil {
		return "ok"
	}
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code
		}
	}
	return codeInternal
}

// ErrorForCode faz o caminho inverso de Code (usado pelos clientes HTTP).
func ErrorForCode(code string) error {
	for _, c := range codes {
		if c.code == code {
			return c.err
		}
	}
	return nil
}
