// Package notifier
package notifier

import (
	"fmt"

	"github.com/ktsuji/asagake/internal/signal"
)

// Notifier interface for sending notifications (e.g., Telegram).
type Notifier interface {
	Send(msg string) error
	SendWithRetry(msg string) error
}

// FormatSignal renders a signal as a human-readable alert message.
func FormatSignal(s signal.Signal) string {
	return fmt.Sprintf(
		"%s signal: %s (%s)\n"+
			"time: %s\n"+
			"direction: %s\n"+
			"current price: %.1f\n"+
			"entry trigger: %.1f\n"+
			"target (AVWAP): %.1f\n"+
			"stop loss: %.1f\n"+
			"deviation: %.1f (threshold %.1f, ATR %.1f)",
		s.SignalType, s.Name, s.Code,
		s.Timestamp.Format("15:04:05"),
		s.Direction,
		s.CurrentPrice,
		s.EntryTriggerPrice,
		s.TargetPrice,
		s.StopLossPrice,
		s.PriceDeviation, s.SetupThreshold, s.ATR,
	)
}
