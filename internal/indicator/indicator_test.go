package indicator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/asagake/internal/candle"
)

func minuteBars(start time.Time, closes, volumes []float64) []candle.Candle {
	bars := make([]candle.Candle, len(closes))
	for i := range closes {
		bars[i] = candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      closes[i],
			High:      closes[i] + 1,
			Low:       closes[i] - 1,
			Close:     closes[i],
			Volume:    volumes[i],
		}
	}
	return bars
}

func TestAnchoredVWAP(t *testing.T) {
	anchor := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)

	t.Run("Empty series unavailable", func(t *testing.T) {
		_, ok := AnchoredVWAP(nil, anchor)
		assert.False(t, ok)
	})

	t.Run("All bars before anchor unavailable", func(t *testing.T) {
		bars := minuteBars(anchor.Add(-10*time.Minute), []float64{100, 101}, []float64{10, 10})
		_, ok := AnchoredVWAP(bars, anchor)
		assert.False(t, ok)
	})

	t.Run("Zero volume after anchor unavailable not zero", func(t *testing.T) {
		bars := minuteBars(anchor, []float64{100, 101, 102}, []float64{0, 0, 0})
		v, ok := AnchoredVWAP(bars, anchor)
		assert.False(t, ok)
		assert.Equal(t, 0.0, v)
	})

	t.Run("Volume weighted average", func(t *testing.T) {
		bars := minuteBars(anchor, []float64{100, 200}, []float64{300, 100})
		v, ok := AnchoredVWAP(bars, anchor)
		require.True(t, ok)
		// (100*300 + 200*100) / 400 = 125
		assert.InDelta(t, 125.0, v, 1e-12)
	})

	t.Run("Bars before anchor ignored", func(t *testing.T) {
		pre := minuteBars(anchor.Add(-5*time.Minute), []float64{1, 1}, []float64{1e6, 1e6})
		post := minuteBars(anchor, []float64{100, 102}, []float64{50, 50})
		v, ok := AnchoredVWAP(append(pre, post...), anchor)
		require.True(t, ok)
		assert.InDelta(t, 101.0, v, 1e-12)
	})

	t.Run("Bar exactly at anchor included", func(t *testing.T) {
		bars := minuteBars(anchor, []float64{100}, []float64{10})
		v, ok := AnchoredVWAP(bars, anchor)
		require.True(t, ok)
		assert.Equal(t, 100.0, v)
	})
}

func TestATR(t *testing.T) {
	start := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)

	bar := func(i int, high, low, close float64) candle.Candle {
		return candle.Candle{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      close,
			High:      high,
			Low:       low,
			Close:     close,
		}
	}

	t.Run("Exactly period bars unavailable", func(t *testing.T) {
		bars := make([]candle.Candle, 5)
		for i := range bars {
			bars[i] = bar(i, 101, 99, 100)
		}
		_, ok := ATR(bars, 5)
		assert.False(t, ok)
	})

	t.Run("Period plus one bars defined", func(t *testing.T) {
		bars := make([]candle.Candle, 6)
		for i := range bars {
			bars[i] = bar(i, 102, 98, 100)
		}
		v, ok := ATR(bars, 5)
		require.True(t, ok)
		assert.InDelta(t, 4.0, v, 1e-12)
	})

	t.Run("Gap to previous close dominates", func(t *testing.T) {
		bars := []candle.Candle{
			bar(0, 101, 99, 100),
			bar(1, 121, 119, 120), // |high-prevClose| = 21
		}
		v, ok := ATR(bars, 1)
		require.True(t, ok)
		assert.InDelta(t, 21.0, v, 1e-12)
	})

	t.Run("Downward gap dominates", func(t *testing.T) {
		bars := []candle.Candle{
			bar(0, 101, 99, 100),
			bar(1, 81, 79, 80), // |low-prevClose| = 21
		}
		v, ok := ATR(bars, 1)
		require.True(t, ok)
		assert.InDelta(t, 21.0, v, 1e-12)
	})

	t.Run("Only trailing window contributes", func(t *testing.T) {
		bars := []candle.Candle{
			bar(0, 1000, 900, 950), // wild early bar, outside window
			bar(1, 952, 948, 950),
			bar(2, 952, 948, 950),
			bar(3, 952, 948, 950),
		}
		v, ok := ATR(bars, 2)
		require.True(t, ok)
		assert.InDelta(t, 4.0, v, 1e-12)
	})

	t.Run("Invalid period", func(t *testing.T) {
		bars := []candle.Candle{bar(0, 101, 99, 100), bar(1, 101, 99, 100)}
		_, ok := ATR(bars, 0)
		assert.False(t, ok)
	})
}

func TestTrueRange(t *testing.T) {
	cur := candle.Candle{High: 105, Low: 95, Close: 100}

	assert.Equal(t, 10.0, TrueRange(cur, 100))
	assert.Equal(t, 25.0, TrueRange(cur, 120)) // |low - prevClose|
	assert.Equal(t, 25.0, TrueRange(cur, 80))  // |high - prevClose|
}

func TestAVWAPAccumulator(t *testing.T) {
	anchor := time.Date(2025, 9, 2, 9, 0, 0, 0, time.UTC)
	acc := NewAVWAPAccumulator(anchor)

	_, ok := acc.Value()
	assert.False(t, ok)

	acc.Add(candle.Candle{Timestamp: anchor.Add(-time.Minute), Close: 1, Volume: 1e9})
	_, ok = acc.Value()
	assert.False(t, ok, "pre-anchor bars must not count")

	acc.Add(candle.Candle{Timestamp: anchor, Close: 100, Volume: 10})
	acc.Add(candle.Candle{Timestamp: anchor.Add(time.Minute), Close: 110, Volume: 30})
	v, ok := acc.Value()
	require.True(t, ok)
	assert.InDelta(t, 107.5, v, 1e-12)
}
