package handler

import (
	"time"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// BetDTO is the wire form of a bet.
type BetDTO struct {
	ID          string  `json:"id"`
	Asset       string  `json:"asset"`
	Direction   string  `json:"direction"`
	Stake       float64 `json:"stake"`
	TargetPrice float64 `json:"target_price"`
	EntryPrice  float64 `json:"entry_price"`
	Multiplier  float64 `json:"multiplier"`
	PlacedAt    string  `json:"placed_at"`
	ExpiresAt   string  `json:"expires_at"`
	Status      string  `json:"status"`
}

// CompletedBetDTO extends BetDTO with the realized outcome.
type CompletedBetDTO struct {
	BetDTO
	PnL        float64 `json:"pnl"`
	ResolvedAt string  `json:"resolved_at"`
}

// BoxDTO is the wire form of one grid cell.
type BoxDTO struct {
	ID         string  `json:"id"`
	Row        int     `json:"row"`
	Col        int     `json:"col"`
	Price      float64 `json:"price"`
	TimeWindow int     `json:"time_window"`
	Multiplier float64 `json:"multiplier"`
	Direction  string  `json:"direction"`
}

// GridDTO is the wire form of the full two-sided grid.
type GridDTO struct {
	Asset      string     `json:"asset"`
	BasePrice  float64    `json:"base_price"`
	LongBoxes  [][]BoxDTO `json:"long_boxes"`
	ShortBoxes [][]BoxDTO `json:"short_boxes"`
}

// PricePointDTO is one history sample.
type PricePointDTO struct {
	Time  string  `json:"time"`
	Price float64 `json:"price"`
}

// StateDTO is the consolidated session view.
type StateDTO struct {
	Asset            string            `json:"asset"`
	CurrentPrice     float64           `json:"current_price"`
	PriceHistory     []PricePointDTO   `json:"price_history"`
	BetAmount        float64           `json:"bet_amount"`
	ActiveBets       []BetDTO          `json:"active_bets"`
	CompletedBets    []CompletedBetDTO `json:"completed_bets"`
	ExternalBalance  float64           `json:"external_balance"`
	AvailableBalance float64           `json:"available_balance"`
	SessionPnL       float64           `json:"session_pnl"`
	Connected        bool              `json:"connected"`
}

func toBetDTO(b domain.TapBet) BetDTO {
	return BetDTO{
		ID:          b.ID,
		Asset:       b.Asset,
		Direction:   string(b.Direction),
		Stake:       b.Stake,
		TargetPrice: b.TargetPrice,
		EntryPrice:  b.EntryPrice,
		Multiplier:  b.Multiplier,
		PlacedAt:    b.PlacedAt.UTC().Format(time.RFC3339Nano),
		ExpiresAt:   b.ExpiresAt.UTC().Format(time.RFC3339Nano),
		Status:      string(b.Status),
	}
}

func toCompletedBetDTO(c domain.CompletedBet) CompletedBetDTO {
	return CompletedBetDTO{
		BetDTO:     toBetDTO(c.TapBet),
		PnL:        c.PnL,
		ResolvedAt: c.ResolvedAt.UTC().Format(time.RFC3339Nano),
	}
}

func toBoxDTO(b domain.GridBox) BoxDTO {
	return BoxDTO{
		ID:         b.ID,
		Row:        b.Row,
		Col:        b.Col,
		Price:      b.Price,
		TimeWindow: b.TimeWindow,
		Multiplier: b.Multiplier,
		Direction:  string(b.Direction),
	}
}

func toGridDTO(g domain.Grid) GridDTO {
	conv := func(rows [][]domain.GridBox) [][]BoxDTO {
		out := make([][]BoxDTO, len(rows))
		for i, row := range rows {
			out[i] = make([]BoxDTO, len(row))
			for j, box := range row {
				out[i][j] = toBoxDTO(box)
			}
		}
		return out
	}
	return GridDTO{
		Asset:      g.Asset,
		BasePrice:  g.BasePrice,
		LongBoxes:  conv(g.LongBoxes),
		ShortBoxes: conv(g.ShortBoxes),
	}
}

func toStateDTO(s domain.EngineState) StateDTO {
	history := make([]PricePointDTO, len(s.PriceHistory))
	for i, p := range s.PriceHistory {
		history[i] = PricePointDTO{
			Time:  p.Time.UTC().Format(time.RFC3339Nano),
			Price: p.Price,
		}
	}
	active := make([]BetDTO, len(s.ActiveBets))
	for i, b := range s.ActiveBets {
		active[i] = toBetDTO(b)
	}
	completed := make([]CompletedBetDTO, len(s.CompletedBets))
	for i, c := range s.CompletedBets {
		completed[i] = toCompletedBetDTO(c)
	}
	return StateDTO{
		Asset:            s.Asset,
		CurrentPrice:     s.CurrentPrice,
		PriceHistory:     history,
		BetAmount:        s.BetAmount,
		ActiveBets:       active,
		CompletedBets:    completed,
		ExternalBalance:  s.ExternalBalance,
		AvailableBalance: s.AvailableBalance,
		SessionPnL:       s.SessionPnL,
		Connected:        s.Connected,
	}
}
