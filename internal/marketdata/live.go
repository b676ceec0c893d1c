package marketdata

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ktsuji/asagake/internal/board"
	"github.com/ktsuji/asagake/internal/candle"
	"github.com/ktsuji/asagake/internal/config"
)

// LiveProvider composes the kabu Station board feed and the J-Quants minute
// bar feed behind the single Provider capability.
type LiveProvider struct {
	kabu    *KabuClient
	jquants *JQuantsClient
}

func NewLiveProvider(cfg config.Config, logger zerolog.Logger) *LiveProvider {
	return &LiveProvider{
		kabu:    NewKabuClient(cfg.KabuBaseURL, cfg.KabuAPIKey, cfg.KabuExchange, cfg.RateLimitPerSec, logger),
		jquants: NewJQuantsClient(cfg.JQuantsBaseURL, cfg.JQuantsEmail, cfg.JQuantsPassword, cfg.RateLimitPerSec, logger),
	}
}

func (p *LiveProvider) Authenticate(ctx context.Context) error {
	if err := p.kabu.Authenticate(ctx); err != nil {
		return fmt.Errorf("kabu authentication: %w", err)
	}
	if err := p.jquants.Authenticate(ctx); err != nil {
		return fmt.Errorf("jquants authentication: %w", err)
	}
	return nil
}

func (p *LiveProvider) FetchBoard(ctx context.Context, code string) (board.Snapshot, error) {
	return p.kabu.FetchBoard(ctx, code)
}

func (p *LiveProvider) FetchMinuteBars(ctx context.Context, code string) ([]candle.Candle, error) {
	return p.jquants.FetchMinuteBars(ctx, code)
}

func (p *LiveProvider) ResolveName(ctx context.Context, code string) string {
	return p.jquants.ResolveName(ctx, code)
}

// FetchPrimeCodes exposes TSE Prime discovery for runs without a symbol list.
func (p *LiveProvider) FetchPrimeCodes(ctx context.Context) ([]string, error) {
	return p.jquants.FetchPrimeCodes(ctx)
}
