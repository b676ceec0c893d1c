package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ktsuji/asagake/internal/config"
	"github.com/ktsuji/asagake/internal/export"
	"github.com/ktsuji/asagake/internal/marketdata"
	"github.com/ktsuji/asagake/internal/notifier"
	"github.com/ktsuji/asagake/internal/replay"
	"github.com/ktsuji/asagake/internal/session"
	"github.com/ktsuji/asagake/internal/utils"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	cfg := config.MustLoadConfig()
	logger := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("mode", cfg.Mode).Msg("starting asagake")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
		cancel()
	}()

	var (
		result session.Result
		date   string
		err    error
	)

	switch cfg.Mode {
	case "replay":
		date = cfg.ReplayDate
		result, err = replay.Run(ctx, cfg, logger)
	default:
		loc := marketdata.JST()
		day := clockDay(loc)
		date = day.Format("2006-01-02")

		windows, werr := session.WindowsFor(day, cfg, loc)
		if werr != nil {
			logger.Fatal().Err(werr).Msg("invalid window configuration")
		}

		codes, cerr := loadSymbols(cfg)
		if cerr != nil {
			logger.Fatal().Err(cerr).Msg("failed to load symbol list")
		}

		provider := marketdata.NewLiveProvider(cfg, logger)
		var n notifier.Notifier
		if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
			n = notifier.NewTelegramNotifier(cfg.TelegramToken, cfg.TelegramChatID, cfg.NotificationRetries, cfg.NotificationDelay.Std())
		}

		sess := session.New(cfg, provider, session.RealClock{}, n, logger)
		result, err = sess.Run(ctx, codes, windows)
	}
	if err != nil {
		logger.Error().Err(err).Msg("run failed")
	}

	if werr := export.WriteWatchlist(cfg.WatchlistPath, clockDay(marketdata.JST()), result.Watchlist, result.Summary); werr != nil {
		logger.Error().Err(werr).Msg("failed to write watchlist")
	}
	if serr := export.WriteSignals(cfg.SignalsPath, date, len(result.Watchlist), result.Signals); serr != nil {
		logger.Error().Err(serr).Msg("failed to write signals")
	}

	logger.Info().
		Int("monitored", len(result.Watchlist)).
		Int("signals", len(result.Signals)).
		Msg("run complete")

	if err != nil {
		os.Exit(1)
	}
}

// loadSymbols reads the screening universe from flags or a list file. An
// empty result lets the provider discover TSE Prime codes itself.
func loadSymbols(cfg config.Config) ([]string, error) {
	if len(cfg.Symbols) > 0 {
		return cfg.Symbols, nil
	}
	if cfg.SymbolsFile == "" {
		return nil, nil
	}

	data, err := os.ReadFile(cfg.SymbolsFile)
	if err != nil {
		return nil, err
	}

	var codes []string
	for _, line := range strings.Split(string(data), "\n") {
		for _, field := range strings.Split(line, ",") {
			code := strings.TrimSpace(field)
			if code == "" || strings.EqualFold(code, "code") {
				continue
			}
			codes = append(codes, code)
		}
	}
	return codes, nil
}

func clockDay(loc *time.Location) time.Time {
	return time.Now().In(loc)
}
