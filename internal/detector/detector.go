// Package detector
package detector

import (
	"math"
	"time"

	"github.com/ktsuji/asagake/internal/candle"
	"github.com/ktsuji/asagake/internal/indicator"
	"github.com/ktsuji/asagake/internal/signal"
)

// Params are the detector tuning knobs shared by every monitored stock.
type Params struct {
	ATRPeriod             int
	DeviationMultiplier   float64
	StopLossATRMultiplier float64
}

// Detector evaluates one monitored stock. The only state it holds between
// ticks is the live bar sequence and the fixed direction assigned at
// selection; every Evaluate call is a pure re-derivation from those, so
// re-evaluating an unchanged sequence with the same clock yields the same
// verdict.
type Detector struct {
	code      string
	name      string
	direction signal.Direction
	anchor    time.Time
	params    Params
	bars      []candle.Candle
}

func New(code, name string, direction signal.Direction, anchor time.Time, params Params) *Detector {
	return &Detector{
		code:      code,
		name:      name,
		direction: direction,
		anchor:    anchor,
		params:    params,
	}
}

func (d *Detector) Code() string { return d.code }

// SetBars replaces the bar sequence with a freshly fetched one. Bars are
// sorted and deduplicated by timestamp, later copies of a minute winning.
func (d *Detector) SetBars(bars []candle.Candle) {
	d.bars = candle.Normalize(bars)
}

func (d *Detector) BarCount() int { return len(d.bars) }

// Evaluate runs the setup and entry-trigger gates against the current bar
// sequence and returns a signal, or nil when any gate fails. Missing
// preconditions are not errors: the caller simply polls again next tick.
func (d *Detector) Evaluate(now time.Time) *signal.Signal {
	if len(d.bars) < 2 {
		return nil
	}

	vwap, ok := indicator.AnchoredVWAP(d.bars, d.anchor)
	if !ok {
		return nil
	}
	atr, ok := indicator.ATR(d.bars, d.params.ATRPeriod)
	if !ok {
		return nil
	}

	cur := d.bars[len(d.bars)-1]
	prev := d.bars[len(d.bars)-2]

	deviation := math.Abs(cur.Close - vwap)
	threshold := d.params.DeviationMultiplier * atr
	if deviation < threshold {
		return nil
	}

	kind, trigger, ok := entryTrigger(prev, cur, d.direction, vwap)
	if !ok {
		return nil
	}

	return &signal.Signal{
		Code:              d.code,
		Name:              d.name,
		Timestamp:         now,
		SignalType:        kind,
		Direction:         d.direction,
		CurrentPrice:      cur.Close,
		AVWAP:             vwap,
		ATR:               atr,
		EntryTriggerPrice: trigger,
		TargetPrice:       vwap,
		StopLossPrice:     stopLoss(cur, d.direction, atr, d.params.StopLossATRMultiplier),
		PriceDeviation:    deviation,
		SetupThreshold:    threshold,
	}
}

// entryTrigger detects the two-bar reversal through the prior bar's open.
// Short: price stretched above the anchored VWAP, prior bar bullish, current
// close back under the prior open. Long is the mirror image.
func entryTrigger(prev, cur candle.Candle, direction signal.Direction, vwap float64) (signal.Kind, float64, bool) {
	switch direction {
	case signal.DirectionShort:
		if cur.Close > vwap && prev.IsBullish() && cur.Close < prev.Open {
			return signal.KindReversalShort, prev.Open, true
		}
	case signal.DirectionLong:
		if cur.Close < vwap && prev.IsBearish() && cur.Close > prev.Open {
			return signal.KindReversalLong, prev.Open, true
		}
	}
	return "", 0, false
}

func stopLoss(cur candle.Candle, direction signal.Direction, atr, multiplier float64) float64 {
	if direction == signal.DirectionShort {
		return cur.High + multiplier*atr
	}
	return cur.Low - multiplier*atr
}
