package escrow

import "github.com/radieske/bet-escrow-poc/pkg/contracts/events"

// Event converte o record para o contrato publicado no Kafka e no feed.
func (r Record) Event() events.EscrowTransition {
	e := events.EscrowTransition{
		Seq:        r.Seq,
		Kind:       string(r.Kind),
		BetID:      r.BetID,
		Challenger: r.Challenger.Hex(),
		Name:       r.Name,
		Price:      r.Price,
		Payout:     r.Payout,
		At:         r.At,
		TsUnixMs:   r.At.UnixMilli(),
	}
	if r.Accepter != NoIdentity {
		e.Accepter = r.Accepter.Hex()
	}
	if r.Winner != NoIdentity {
		e.Winner = r.Winner.Hex()
	}
	return e
}
