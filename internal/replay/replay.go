package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ktsuji/asagake/internal/config"
	"github.com/ktsuji/asagake/internal/marketdata"
	"github.com/ktsuji/asagake/internal/session"
)

// Run replays one trading day from fixture files through the identical
// session the live poller drives. Given the same snapshots and bars in the
// same order, it produces the same monitoring set and signal list.
func Run(ctx context.Context, cfg config.Config, logger zerolog.Logger) (session.Result, error) {
	loc := marketdata.JST()

	day, err := parseDay(cfg.ReplayDate, loc)
	if err != nil {
		return session.Result{}, err
	}

	windows, err := session.WindowsFor(day, cfg, loc)
	if err != nil {
		return session.Result{}, fmt.Errorf("resolve windows: %w", err)
	}

	clock := session.NewVirtualClock(windows.SamplingStart)
	provider, err := NewFileProvider(cfg.ReplayAOICSV, cfg.ReplayMinuteDir, cfg.ReplayDate, loc, clock)
	if err != nil {
		return session.Result{}, err
	}

	sess := session.New(cfg, provider, clock, nil, logger)
	return sess.Run(ctx, provider.Codes(), windows)
}

func parseDay(date string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse replay date: %w", err)
	}
	return day, nil
}
