package escrow

import (
	"math"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Identity é o endereço de uma conta participante (challenger, accepter, referee).
// O endereço zero é o sentinela "sem identidade".
type Identity = common.Address

// NoIdentity representa a ausência de accepter/winner.
var NoIdentity Identity

// Amount é um valor na moeda nativa, em unidades mínimas.
type Amount = int64

// MaxPrice é o maior preço aceito: o pote (2 × price) precisa caber em um Amount.
const MaxPrice Amount = math.MaxInt64 / 2

// ParseIdentity converte um endereço hex ("0x...") em Identity.
func ParseIdentity(s string) (Identity, error) {
	if !common.IsHexAddress(s) {
		return NoIdentity, ErrInvalidCaller
	}
	return common.HexToAddress(s), nil
}

type State string

const (
	StateOpen     State = "OPEN"
	StateAccepted State = "ACCEPTED"
	StateResolved State = "RESOLVED"
)

// Bet é o registro persistido de uma aposta.
type Bet struct {
	ID         uint64
	Challenger Identity
	Accepter   Identity
	Name       string
	Conditions string
	Price      Amount
	State      State
	Winner     Identity
	CreatedAt  time.Time
	AcceptedAt time.Time
	ResolvedAt time.Time
}

func (b Bet) HasAccepter() bool { return b.Accepter != NoIdentity }

// Payout é o pote completo pago ao vencedor.
func (b Bet) Payout() Amount { return 2 * b.Price }

// Call carrega a identidade de quem chama e o valor anexado à chamada.
type Call struct {
	From  Identity
	Value Amount
}
