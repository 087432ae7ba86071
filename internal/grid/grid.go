// Package grid generates the two-sided payout grid from a current price.
// Generation is a pure function of its inputs: the same price, asset,
// and parameters always produce the same grid.
package grid

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/tapbot/internal/domain"
)

// Params shapes the multiplier curve and grid dimensions.
type Params struct {
	RowsPerSide int
	// TimeWindows holds the column durations in seconds, ascending.
	TimeWindows []int
	// MinMultiplier and MaxMultiplier clamp every cell's payout.
	MinMultiplier float64
	MaxMultiplier float64
	// BaseMultiplier is the curve's floor before distance scaling.
	BaseMultiplier float64
	// DistanceWeight scales normalized price distance into payout.
	DistanceWeight float64
	// TimeDecay discounts payout per extra second of window.
	TimeDecay float64
}

// Generator produces grids for a fixed parameter set.
type Generator struct {
	params Params
}

// NewGenerator validates and captures the grid parameters.
func NewGenerator(p Params) (*Generator, error) {
	if p.RowsPerSide <= 0 {
		return nil, fmt.Errorf("grid: rows per side must be positive, got %d", p.RowsPerSide)
	}
	if len(p.TimeWindows) == 0 {
		return nil, fmt.Errorf("grid: at least one time window required")
	}
	for i := 1; i < len(p.TimeWindows); i++ {
		if p.TimeWindows[i] <= p.TimeWindows[i-1] {
			return nil, fmt.Errorf("grid: time windows must be strictly ascending")
		}
	}
	if p.MinMultiplier < 1 || p.MaxMultiplier <= p.MinMultiplier {
		return nil, fmt.Errorf("grid: invalid multiplier bounds [%v, %v]", p.MinMultiplier, p.MaxMultiplier)
	}
	return &Generator{params: p}, nil
}

// BasePrice snaps a price to the asset's increment grid, round to nearest.
func BasePrice(currentPrice, increment float64) float64 {
	return math.Round(currentPrice/increment) * increment
}

// Generate builds a fresh grid for the asset at the given price. The
// long side sits above the current price, the short side below, each
// RowsPerSide deep with one column per time window.
func (g *Generator) Generate(currentPrice float64, spec domain.AssetSpec) (domain.Grid, error) {
	if currentPrice <= 0 {
		return domain.Grid{}, fmt.Errorf("grid: current price must be positive, got %v", currentPrice)
	}
	if !spec.Valid() {
		return domain.Grid{}, fmt.Errorf("grid: %w: %q", domain.ErrInvalidAsset, spec.Symbol)
	}

	base := BasePrice(currentPrice, spec.Increment)
	out := domain.Grid{
		Asset:      spec.Symbol,
		BasePrice:  base,
		LongBoxes:  make([][]domain.GridBox, g.params.RowsPerSide),
		ShortBoxes: make([][]domain.GridBox, g.params.RowsPerSide),
	}

	for row := 0; row < g.params.RowsPerSide; row++ {
		longTarget := base + float64(row+1)*spec.Increment
		shortTarget := base - float64(row+1)*spec.Increment

		out.LongBoxes[row] = make([]domain.GridBox, len(g.params.TimeWindows))
		out.ShortBoxes[row] = make([]domain.GridBox, len(g.params.TimeWindows))

		for col, window := range g.params.TimeWindows {
			out.LongBoxes[row][col] = domain.GridBox{
				ID:         boxID(spec.Symbol, domain.DirectionLong, row, col),
				Row:        row,
				Col:        col,
				Price:      longTarget,
				TimeWindow: window,
				Multiplier: g.multiplier(currentPrice, longTarget, window),
				Direction:  domain.DirectionLong,
			}
			out.ShortBoxes[row][col] = domain.GridBox{
				ID:         boxID(spec.Symbol, domain.DirectionShort, row, col),
				Row:        row,
				Col:        col,
				Price:      shortTarget,
				TimeWindow: window,
				Multiplier: g.multiplier(currentPrice, shortTarget, window),
				Direction:  domain.DirectionShort,
			}
		}
	}
	return out, nil
}

// multiplier combines normalized distance and window length into a
// clamped payout. Further targets pay more; longer windows pay less.
func (g *Generator) multiplier(current, target float64, windowSec int) float64 {
	distance := math.Abs(target-current) / current
	distanceTerm := g.params.BaseMultiplier + g.params.DistanceWeight*distance
	timeTerm := math.Exp(-g.params.TimeDecay * float64(windowSec))

	m := distanceTerm * timeTerm
	if m < g.params.MinMultiplier {
		return g.params.MinMultiplier
	}
	if m > g.params.MaxMultiplier {
		return g.params.MaxMultiplier
	}
	return roundMultiplier(m)
}

// roundMultiplier keeps payouts at two decimal places.
func roundMultiplier(m float64) float64 {
	return math.Round(m*100) / 100
}

func boxID(asset string, dir domain.Direction, row, col int) string {
	return fmt.Sprintf("%s-%s-r%d-c%d", asset, dir, row, col)
}
