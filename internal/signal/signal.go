// Package signal
package signal

import "time"

type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

type Kind string

const (
	KindReversalLong  Kind = "reversal-long"
	KindReversalShort Kind = "reversal-short"
)

// Signal is one emitted entry signal. Immutable once created.
type Signal struct {
	Code              string    `json:"code"`
	Name              string    `json:"name"`
	Timestamp         time.Time `json:"timestamp"`
	SignalType        Kind      `json:"signal_type"`
	Direction         Direction `json:"direction"`
	CurrentPrice      float64   `json:"current_price"`
	AVWAP             float64   `json:"avwap"`
	ATR               float64   `json:"atr"`
	EntryTriggerPrice float64   `json:"entry_trigger_price"`
	TargetPrice       float64   `json:"target_price"`
	StopLossPrice     float64   `json:"stop_loss_price"`
	PriceDeviation    float64   `json:"price_deviation"`
	SetupThreshold    float64   `json:"setup_threshold"`
}
