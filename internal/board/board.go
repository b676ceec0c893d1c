// Package board
package board

import "time"

// Snapshot is one pre-open order book observation for a single stock.
// It is ephemeral: produced per poll and discarded after AOI extraction.
type Snapshot struct {
	Code      string    `json:"code"`
	Timestamp time.Time `json:"timestamp"`
	BidQty    float64   `json:"bid_volume"`
	AskQty    float64   `json:"ask_volume"`
	BidPrice  float64   `json:"bid_price"`
	AskPrice  float64   `json:"ask_price"`
}

// AOI returns the auction order imbalance (bid-ask)/(bid+ask) in [-1, 1].
// A board with no resting quantity carries no liquidity signal and maps to 0.
func (s Snapshot) AOI() float64 {
	total := s.BidQty + s.AskQty
	if total == 0 {
		return 0.0
	}
	return (s.BidQty - s.AskQty) / total
}
