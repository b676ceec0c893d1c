// Package indicator
package indicator

import (
	"math"

	"github.com/ktsuji/asagake/internal/candle"
)

// TrueRange returns max(high-low, |high-prevClose|, |low-prevClose|).
func TrueRange(cur candle.Candle, prevClose float64) float64 {
	tr := cur.High - cur.Low
	if v := math.Abs(cur.High - prevClose); v > tr {
		tr = v
	}
	if v := math.Abs(cur.Low - prevClose); v > tr {
		tr = v
	}
	return tr
}

// ATR computes the simple moving average of true range over the most recent
// period values, evaluated at the end of the series. The first bar has no
// previous close and never contributes a true-range value, so period+1 bars
// are required. Only the trailing window is visited.
func ATR(bars []candle.Candle, period int) (float64, bool) {
	if period <= 0 || len(bars) < period+1 {
		return 0, false
	}

	var sum float64
	for i := len(bars) - period; i < len(bars); i++ {
		sum += TrueRange(bars[i], bars[i-1].Close)
	}
	return sum / float64(period), true
}
