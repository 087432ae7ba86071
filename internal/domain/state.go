package domain

// EngineState is the consolidated view the engine exposes to consumers.
// It is a snapshot: slices are copies and safe to retain.
type EngineState struct {
	Asset            string
	CurrentPrice     float64
	PriceHistory     []PricePoint
	BetAmount        float64
	ActiveBets       []TapBet
	CompletedBets    []CompletedBet
	ExternalBalance  float64
	AvailableBalance float64
	SessionPnL       float64
	Connected        bool
}
