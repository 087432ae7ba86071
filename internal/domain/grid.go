package domain

// GridBox is one (price level, time window) cell offered for betting.
// Boxes are ephemeral: the whole grid is regenerated whenever the
// current price or selected asset changes, never patched in place.
type GridBox struct {
	ID         string
	Row        int // 0-indexed away from the current price
	Col        int // index into the time-window columns
	Price      float64
	TimeWindow int // seconds until expiry, measured at generation time
	Multiplier float64
	Direction  Direction
}

// Grid is a two-sided arrangement of candidate boxes: long rows above
// the generation price, short rows below it, mirrored.
type Grid struct {
	Asset      string
	BasePrice  float64 // generation price snapped to the asset increment
	LongBoxes  [][]GridBox
	ShortBoxes [][]GridBox
}

// FindBox returns the box with the given id and true when present.
func (g Grid) FindBox(id string) (GridBox, bool) {
	for _, rows := range [][][]GridBox{g.LongBoxes, g.ShortBoxes} {
		for _, row := range rows {
			for _, box := range row {
				if box.ID == id {
					return box, true
				}
			}
		}
	}
	return GridBox{}, false
}
