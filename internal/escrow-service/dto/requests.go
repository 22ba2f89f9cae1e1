package dto

// PublishBetRequest: value é o valor anexado e precisa ser igual a price
type PublishBetRequest struct {
	From       string `json:"from"`
	Value      int64  `json:"value"`
	Name       string `json:"name"`
	Conditions string `json:"conditions"`
	Price      int64  `json:"price"`
}

type AcceptBetRequest struct {
	From  string `json:"from"`
	Value int64  `json:"value"`
}

// ResolveBetRequest: só o referee pode chamar; value deve ser omitido ou 0
type ResolveBetRequest struct {
	From                    string `json:"from"`
	Value                   int64  `json:"value,omitempty"`
	OutcomeFavorsChallenger bool   `json:"outcome_favors_challenger"`
}
