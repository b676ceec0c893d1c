// Package marketdata
package marketdata

import (
	"context"
	"errors"

	"github.com/ktsuji/asagake/internal/board"
	"github.com/ktsuji/asagake/internal/candle"
)

// ErrNoData marks an absent (not failed) fetch: the stock simply has nothing
// to report this tick. Callers skip the sample and keep polling.
var ErrNoData = errors.New("marketdata: no data")

// Provider is the single data-source capability the pipeline consumes. The
// live poller and the offline replay tool are two implementations driving
// the identical core.
type Provider interface {
	// Authenticate performs any upstream bootstrap. Failure is fatal to the
	// run: the caller returns an empty result.
	Authenticate(ctx context.Context) error

	// FetchBoard returns the current pre-open board for a stock, or ErrNoData
	// when nothing is available this tick.
	FetchBoard(ctx context.Context, code string) (board.Snapshot, error)

	// FetchMinuteBars returns today's 1-minute bars for a stock, ordered
	// ascending, or ErrNoData.
	FetchMinuteBars(ctx context.Context, code string) ([]candle.Candle, error)

	// ResolveName returns a display name for a stock code. Implementations
	// fall back to the code itself when no name is known.
	ResolveName(ctx context.Context, code string) string
}
