// Package export
package export

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ktsuji/asagake/internal/screener"
	"github.com/ktsuji/asagake/internal/signal"
)

// WatchlistFile is the monitoring-set snapshot written at selector close.
type WatchlistFile struct {
	Timestamp      time.Time                  `json:"timestamp"`
	MonitoringList []screener.MonitoringEntry `json:"monitoring_list"`
	Summary        screener.Summary           `json:"summary"`
}

// SignalsFile is the signal snapshot written at the end of the monitoring
// window. The structure is the stable contract shared by live and replay.
type SignalsFile struct {
	Date            string          `json:"date"`
	MonitoringCount int             `json:"monitoring_count"`
	TotalSignals    int             `json:"total_signals"`
	LongSignals     int             `json:"long_signals"`
	ShortSignals    int             `json:"short_signals"`
	Signals         []signal.Signal `json:"signals"`
}

func WriteWatchlist(path string, ts time.Time, entries []screener.MonitoringEntry, summary screener.Summary) error {
	if entries == nil {
		entries = []screener.MonitoringEntry{}
	}
	return writeJSON(path, WatchlistFile{
		Timestamp:      ts,
		MonitoringList: entries,
		Summary:        summary,
	})
}

func WriteSignals(path, date string, monitoringCount int, signals []signal.Signal) error {
	if signals == nil {
		signals = []signal.Signal{}
	}
	var longs, shorts int
	for _, s := range signals {
		if s.Direction == signal.DirectionLong {
			longs++
		} else if s.Direction == signal.DirectionShort {
			shorts++
		}
	}
	return writeJSON(path, SignalsFile{
		Date:            date,
		MonitoringCount: monitoringCount,
		TotalSignals:    len(signals),
		LongSignals:     longs,
		ShortSignals:    shorts,
		Signals:         signals,
	})
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
