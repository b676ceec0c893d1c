// Package session
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ktsuji/asagake/internal/config"
	"github.com/ktsuji/asagake/internal/detector"
	"github.com/ktsuji/asagake/internal/marketdata"
	"github.com/ktsuji/asagake/internal/notifier"
	"github.com/ktsuji/asagake/internal/screener"
	"github.com/ktsuji/asagake/internal/signal"
)

// Windows are the absolute phase boundaries for one trading day.
type Windows struct {
	SamplingStart time.Time
	SamplingEnd   time.Time
	Anchor        time.Time
	MonitorStart  time.Time
	MonitorEnd    time.Time
}

// WindowsFor resolves the configured HH:MM:SS window times against a trading
// day in the given location.
func WindowsFor(day time.Time, cfg config.Config, loc *time.Location) (Windows, error) {
	var w Windows
	var err error
	if w.SamplingStart, err = atTime(day, cfg.PreMarketStart, loc); err != nil {
		return w, fmt.Errorf("pre_market_start: %w", err)
	}
	if w.SamplingEnd, err = atTime(day, cfg.PreMarketEnd, loc); err != nil {
		return w, fmt.Errorf("pre_market_end: %w", err)
	}
	if w.Anchor, err = atTime(day, cfg.AnchorTime, loc); err != nil {
		return w, fmt.Errorf("anchor_time: %w", err)
	}
	if w.MonitorStart, err = atTime(day, cfg.MonitorStart, loc); err != nil {
		return w, fmt.Errorf("monitor_start: %w", err)
	}
	if w.MonitorEnd, err = atTime(day, cfg.MonitorEnd, loc); err != nil {
		return w, fmt.Errorf("monitor_end: %w", err)
	}
	return w, nil
}

func atTime(day time.Time, hms string, loc *time.Location) (time.Time, error) {
	t, err := time.Parse("15:04:05", hms)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), t.Second(), 0, loc), nil
}

// Result carries everything one run produced.
type Result struct {
	Watchlist []screener.MonitoringEntry
	Summary   screener.Summary
	Signals   []signal.Signal
}

// Session drives one trading day: pre-open AOI sampling and selection, then
// minute-bar signal monitoring. All per-run state lives on the session and
// is passed explicitly between the two phases.
type Session struct {
	cfg      config.Config
	provider marketdata.Provider
	clock    Clock
	notifier notifier.Notifier
	logger   zerolog.Logger
}

func New(cfg config.Config, provider marketdata.Provider, clock Clock, n notifier.Notifier, logger zerolog.Logger) *Session {
	return &Session{
		cfg:      cfg,
		provider: provider,
		clock:    clock,
		notifier: n,
		logger:   logger,
	}
}

// primeCodeSource is satisfied by providers that can discover the screening
// universe themselves when no symbol list is configured.
type primeCodeSource interface {
	FetchPrimeCodes(ctx context.Context) ([]string, error)
}

// Run executes both phases and returns the monitoring set and all emitted
// signals. Upstream authentication failure is the only fatal error; per-stock
// fetch failures are logged and skipped.
func (s *Session) Run(ctx context.Context, codes []string, w Windows) (Result, error) {
	var result Result

	if err := s.provider.Authenticate(ctx); err != nil {
		return result, fmt.Errorf("provider authentication: %w", err)
	}

	if len(codes) == 0 {
		src, ok := s.provider.(primeCodeSource)
		if !ok {
			return result, fmt.Errorf("no symbols configured and provider cannot discover them")
		}
		discovered, err := src.FetchPrimeCodes(ctx)
		if err != nil {
			return result, fmt.Errorf("prime code discovery: %w", err)
		}
		codes = discovered
	}
	s.logger.Info().Int("codes", len(codes)).Msg("starting pre-open scan")

	sc, err := s.runSampling(ctx, codes, w)
	if err != nil {
		return result, err
	}

	result.Watchlist = sc.Select(screener.Thresholds{
		AOIThreshold:       s.cfg.AOIThreshold,
		StabilityThreshold: s.cfg.AOIStabilityThreshold,
	})
	result.Summary = sc.Summarize(result.Watchlist)

	for _, entry := range result.Watchlist {
		s.logger.Info().
			Str("code", entry.Code).
			Float64("aoi", entry.AOI).
			Float64("aoi_std", entry.AOIStd).
			Str("direction", string(entry.Direction)).
			Msg("selected for monitoring")
	}

	if len(result.Watchlist) == 0 {
		s.logger.Info().Msg("no stocks selected, ending run")
		return result, nil
	}

	signals, err := s.runMonitoring(ctx, result.Watchlist, w)
	if err != nil {
		return result, err
	}
	result.Signals = signals
	return result, nil
}

// runSampling polls boards over the pre-open window and accumulates AOI
// series. A missing board for one stock on one tick is a skipped sample, not
// an error.
func (s *Session) runSampling(ctx context.Context, codes []string, w Windows) (*screener.Screener, error) {
	sc := screener.New()

	// No retroactive catch-up: a late start simply begins from now.
	s.waitUntil(w.SamplingStart, "sampling window")

	iteration := 0
	for !s.clock.Now().After(w.SamplingEnd) {
		if err := ctx.Err(); err != nil {
			return sc, err
		}
		iteration++
		s.logger.Debug().Int("iteration", iteration).Msg("AOI sampling tick")

		for _, code := range codes {
			snap, err := s.provider.FetchBoard(ctx, code)
			if errors.Is(err, marketdata.ErrNoData) {
				continue
			}
			if err != nil {
				s.logger.Warn().Str("code", code).Err(err).Msg("board fetch failed")
				continue
			}
			ts := snap.Timestamp
			if ts.IsZero() {
				ts = s.clock.Now()
			}
			sc.Record(code, ts, snap.AOI())
		}

		s.clock.Sleep(s.cfg.DataFetchInterval.Std())
	}

	s.logger.Info().Int("iterations", iteration).Msg("AOI sampling complete")
	return sc, nil
}

// runMonitoring evaluates each monitored stock once per minute over the
// monitoring window.
func (s *Session) runMonitoring(ctx context.Context, watchlist []screener.MonitoringEntry, w Windows) ([]signal.Signal, error) {
	params := detector.Params{
		ATRPeriod:             s.cfg.ATRPeriod,
		DeviationMultiplier:   s.cfg.AVWAPDeviationMultiplier,
		StopLossATRMultiplier: s.cfg.StopLossATRMultiplier,
	}

	detectors := make([]*detector.Detector, 0, len(watchlist))
	for _, entry := range watchlist {
		name := s.provider.ResolveName(ctx, entry.Code)
		detectors = append(detectors, detector.New(entry.Code, name, entry.Direction, w.Anchor, params))
	}

	s.waitUntil(w.MonitorStart, "monitoring window")

	var signals []signal.Signal
	for !s.clock.Now().After(w.MonitorEnd) {
		if err := ctx.Err(); err != nil {
			return signals, err
		}

		for _, det := range detectors {
			bars, err := s.provider.FetchMinuteBars(ctx, det.Code())
			if errors.Is(err, marketdata.ErrNoData) {
				continue
			}
			if err != nil {
				s.logger.Warn().Str("code", det.Code()).Err(err).Msg("minute bar fetch failed")
				continue
			}
			det.SetBars(bars)

			sig := det.Evaluate(s.clock.Now())
			if sig == nil {
				continue
			}
			signals = append(signals, *sig)
			s.logger.Info().
				Str("code", sig.Code).
				Str("signal_type", string(sig.SignalType)).
				Float64("current_price", sig.CurrentPrice).
				Float64("entry_trigger", sig.EntryTriggerPrice).
				Msg("signal emitted")

			if s.notifier != nil {
				if err := s.notifier.SendWithRetry(notifier.FormatSignal(*sig)); err != nil {
					s.logger.Error().Str("code", sig.Code).Err(err).Msg("signal notification failed")
				}
			}
		}

		s.clock.Sleep(time.Minute)
	}

	s.logger.Info().Int("signals", len(signals)).Msg("monitoring complete")
	return signals, nil
}

func (s *Session) waitUntil(t time.Time, label string) {
	d := t.Sub(s.clock.Now())
	if d <= 0 {
		return
	}
	s.logger.Info().Dur("wait", d).Str("until", t.Format("15:04:05")).Msgf("waiting for %s", label)
	s.clock.Sleep(d)
}
