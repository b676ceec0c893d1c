package indicator

import (
	"time"

	"github.com/ktsuji/asagake/internal/candle"
)

// AVWAPAccumulator maintains running price*volume and volume sums for bars at
// or after the anchor, so the anchored VWAP never requires a full rescan.
type AVWAPAccumulator struct {
	anchor time.Time
	pv     float64
	volume float64
	count  int
}

func NewAVWAPAccumulator(anchor time.Time) *AVWAPAccumulator {
	return &AVWAPAccumulator{anchor: anchor}
}

// Add folds one bar into the accumulator. Bars before the anchor are ignored.
func (a *AVWAPAccumulator) Add(c candle.Candle) {
	if c.Timestamp.Before(a.anchor) {
		return
	}
	a.pv += c.Close * c.Volume
	a.volume += c.Volume
	a.count++
}

// Value returns the anchored VWAP. The second result is false when no bar at
// or after the anchor has been seen, or when total volume is zero: callers
// must treat that as unavailable, not as a valid zero.
func (a *AVWAPAccumulator) Value() (float64, bool) {
	if a.count == 0 || a.volume == 0 {
		return 0, false
	}
	return a.pv / a.volume, true
}

// AnchoredVWAP computes Σ(close·volume)/Σ(volume) over bars with
// timestamp >= anchor.
func AnchoredVWAP(bars []candle.Candle, anchor time.Time) (float64, bool) {
	acc := NewAVWAPAccumulator(anchor)
	for _, c := range bars {
		acc.Add(c)
	}
	return acc.Value()
}
