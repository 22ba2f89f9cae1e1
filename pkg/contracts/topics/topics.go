package topics

const (
	// Escrow
	EscrowTransitions = "escrow_transitions"

	// DLQs
	EscrowTransitionsDLQ = "escrow_transitions_dlq"
)
