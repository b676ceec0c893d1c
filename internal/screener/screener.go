// Package screener
package screener

import (
	"math"
	"sort"
	"time"

	"github.com/ktsuji/asagake/internal/signal"
)

// Sample is one AOI observation for a stock during the pre-open window.
type Sample struct {
	Timestamp time.Time
	Ratio     float64
}

// MonitoringEntry is one selected stock with its assigned direction.
// Created once at selection time and read-only afterward.
type MonitoringEntry struct {
	Code       string           `json:"code"`
	AOI        float64          `json:"aoi"`
	AOIStd     float64          `json:"aoi_std"`
	Direction  signal.Direction `json:"direction"`
	AOIHistory []float64        `json:"aoi_history"`
}

// Thresholds are the selection criteria applied at window close.
type Thresholds struct {
	AOIThreshold       float64
	StabilityThreshold float64
}

// Screener accumulates per-stock AOI series over the pre-open window and
// selects the monitoring set at window close. All state is owned by the
// Screener value for one run; nothing is shared across runs.
type Screener struct {
	order   []string
	history map[string][]Sample
}

func New() *Screener {
	return &Screener{
		history: make(map[string][]Sample),
	}
}

// Record appends one AOI sample for a stock. Series are append-only and
// ordered by record time. First-seen stock order is retained for tie-breaks.
func (s *Screener) Record(code string, ts time.Time, ratio float64) {
	if _, ok := s.history[code]; !ok {
		s.order = append(s.order, code)
	}
	s.history[code] = append(s.history[code], Sample{Timestamp: ts, Ratio: ratio})
}

// SampleCount returns the number of samples recorded for a stock.
func (s *Screener) SampleCount(code string) int {
	return len(s.history[code])
}

// Select returns the monitoring set: stocks with at least 3 samples whose
// final AOI magnitude meets the threshold and whose series is stable. The
// result is ordered by descending |final AOI|; equal magnitudes keep
// first-seen order. An empty result is valid and means no monitoring today.
func (s *Screener) Select(th Thresholds) []MonitoringEntry {
	var selected []MonitoringEntry

	for _, code := range s.order {
		samples := s.history[code]
		if len(samples) < 3 {
			continue
		}

		final := samples[len(samples)-1].Ratio
		std := populationStd(samples)

		if math.Abs(final) < th.AOIThreshold || std > th.StabilityThreshold {
			continue
		}

		direction := signal.DirectionLong
		if final > 0 {
			direction = signal.DirectionShort
		}

		history := make([]float64, len(samples))
		for i, sm := range samples {
			history[i] = sm.Ratio
		}

		selected = append(selected, MonitoringEntry{
			Code:       code,
			AOI:        final,
			AOIStd:     std,
			Direction:  direction,
			AOIHistory: history,
		})
	}

	sort.SliceStable(selected, func(i, j int) bool {
		return math.Abs(selected[i].AOI) > math.Abs(selected[j].AOI)
	})
	return selected
}

// Summary reports scan-wide selection metrics.
type Summary struct {
	TotalStocksScanned       int     `json:"total_stocks_scanned"`
	MonitoringStocksSelected int     `json:"monitoring_stocks_selected"`
	SelectionRate            float64 `json:"selection_rate"`
}

func (s *Screener) Summarize(selected []MonitoringEntry) Summary {
	total := len(s.history)
	rate := 0.0
	if total > 0 {
		rate = float64(len(selected)) / float64(total)
	}
	return Summary{
		TotalStocksScanned:       total,
		MonitoringStocksSelected: len(selected),
		SelectionRate:            rate,
	}
}

func populationStd(samples []Sample) float64 {
	n := float64(len(samples))
	var sum float64
	for _, sm := range samples {
		sum += sm.Ratio
	}
	mean := sum / n

	var variance float64
	for _, sm := range samples {
		d := sm.Ratio - mean
		variance += d * d
	}
	return math.Sqrt(variance / n)
}
