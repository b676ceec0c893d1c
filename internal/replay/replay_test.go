package replay

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ktsuji/asagake/internal/board"
	"github.com/ktsuji/asagake/internal/candle"
	"github.com/ktsuji/asagake/internal/config"
	"github.com/ktsuji/asagake/internal/marketdata"
	"github.com/ktsuji/asagake/internal/session"
	"github.com/ktsuji/asagake/internal/signal"
)

const fixtureDate = "2025-09-02"

// Three stable AOI samples above threshold, then seven minute bars that set
// up a short reversal: VWAP 990, ATR(5) 10, trigger on the 09:06 bar.
func writeFixtures(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()

	aoiCSV := filepath.Join(dir, "aoi.csv")
	aoi := `code,timestamp,aoi
7203,2025-09-02 08:55:00,0.5
7203,2025-09-02 08:55:10,0.45
7203,2025-09-02 08:55:20,0.5
`
	require.NoError(t, os.WriteFile(aoiCSV, []byte(aoi), 0o644))

	minuteDir := filepath.Join(dir, "minutes")
	require.NoError(t, os.Mkdir(minuteDir, 0o755))
	minute := `datetime,open,high,low,close,volume
2025-09-02 09:00:00,900,905,895,900,100
2025-09-02 09:01:00,1000,1005,998,1002,100
2025-09-02 09:02:00,1000,1008,998,1004,100
2025-09-02 09:03:00,1002,1010,1000,1006,100
2025-09-02 09:04:00,1004,1012,1002,1008,100
2025-09-02 09:05:00,1005,1013,1003,1010,100
2025-09-02 09:06:00,1008,1010,1000,1000,100
`
	require.NoError(t, os.WriteFile(filepath.Join(minuteDir, "7203.csv"), []byte(minute), 0o644))
	return aoiCSV, minuteDir
}

func replayConfig(t *testing.T) config.Config {
	t.Helper()
	aoiCSV, minuteDir := writeFixtures(t)

	cfg := config.Default()
	cfg.Mode = "replay"
	cfg.ReplayDate = fixtureDate
	cfg.ReplayAOICSV = aoiCSV
	cfg.ReplayMinuteDir = minuteDir
	return cfg
}

func jstTime(hour, min, sec int) time.Time {
	return time.Date(2025, 9, 2, hour, min, sec, 0, marketdata.JST())
}

func TestReplayRun(t *testing.T) {
	cfg := replayConfig(t)

	result, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	require.Len(t, result.Watchlist, 1)
	entry := result.Watchlist[0]
	assert.Equal(t, "7203", entry.Code)
	assert.Equal(t, signal.DirectionShort, entry.Direction)
	assert.InDelta(t, 0.5, entry.AOI, 1e-12)
	assert.InDelta(t, 0.023570226, entry.AOIStd, 1e-9)
	require.Len(t, entry.AOIHistory, 3)
	assert.InDelta(t, 0.45, entry.AOIHistory[1], 1e-12)

	assert.Equal(t, 1, result.Summary.TotalStocksScanned)
	assert.Equal(t, 1, result.Summary.MonitoringStocksSelected)

	// Trigger bar lands at 09:06 and, without suppression, the signal
	// repeats on every minute tick through 09:15.
	require.Len(t, result.Signals, 10)
	for i, sig := range result.Signals {
		assert.Equal(t, "7203", sig.Code)
		assert.Equal(t, signal.KindReversalShort, sig.SignalType)
		assert.True(t, jstTime(9, 6+i, 0).Equal(sig.Timestamp))
		assert.InDelta(t, 990.0, sig.AVWAP, 1e-9)
		assert.InDelta(t, 10.0, sig.ATR, 1e-9)
		assert.InDelta(t, 1005.0, sig.EntryTriggerPrice, 1e-9)
		assert.InDelta(t, 990.0, sig.TargetPrice, 1e-9)
		assert.InDelta(t, 1023.0, sig.StopLossPrice, 1e-9)
	}
}

func TestReplayBadDate(t *testing.T) {
	cfg := replayConfig(t)
	cfg.ReplayDate = "02-09-2025"
	_, err := Run(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

// memProvider serves the same samples and bars as the CSV fixtures but from
// memory, with identical release semantics.
type memProvider struct {
	clock  *session.VirtualClock
	rows   []aoiRow
	cursor int
	bars   []candle.Candle
}

func (p *memProvider) Authenticate(ctx context.Context) error { return nil }

func (p *memProvider) ResolveName(ctx context.Context, code string) string { return code }

func (p *memProvider) FetchBoard(ctx context.Context, code string) (board.Snapshot, error) {
	last := -1
	for p.cursor < len(p.rows) && !p.rows[p.cursor].ts.After(p.clock.Now()) {
		last = p.cursor
		p.cursor++
	}
	if last < 0 {
		return board.Snapshot{}, marketdata.ErrNoData
	}
	row := p.rows[last]
	return board.Snapshot{
		Code:      code,
		Timestamp: row.ts,
		BidQty:    (1 + row.ratio) / 2,
		AskQty:    (1 - row.ratio) / 2,
	}, nil
}

func (p *memProvider) FetchMinuteBars(ctx context.Context, code string) ([]candle.Candle, error) {
	now := p.clock.Now()
	n := 0
	for n < len(p.bars) && !p.bars[n].Timestamp.After(now) {
		n++
	}
	if n == 0 {
		return nil, marketdata.ErrNoData
	}
	out := make([]candle.Candle, n)
	copy(out, p.bars[:n])
	return out, nil
}

// A replayed day and a live day fed the same snapshots and bars must produce
// the same watchlist and the same signal list.
func TestReplayMatchesLiveSession(t *testing.T) {
	cfg := replayConfig(t)

	replayed, err := Run(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	loc := marketdata.JST()
	day := time.Date(2025, 9, 2, 0, 0, 0, 0, loc)
	windows, err := session.WindowsFor(day, cfg, loc)
	require.NoError(t, err)

	minuteBar := func(minute int, o, h, l, c float64) candle.Candle {
		return candle.Candle{
			Timestamp: jstTime(9, minute, 0),
			Open:      o, High: h, Low: l, Close: c,
			Volume: 100,
			Symbol: "7203",
		}
	}

	clock := session.NewVirtualClock(windows.SamplingStart)
	provider := &memProvider{
		clock: clock,
		rows: []aoiRow{
			{ts: jstTime(8, 55, 0), ratio: 0.5},
			{ts: jstTime(8, 55, 10), ratio: 0.45},
			{ts: jstTime(8, 55, 20), ratio: 0.5},
		},
		bars: []candle.Candle{
			minuteBar(0, 900, 905, 895, 900),
			minuteBar(1, 1000, 1005, 998, 1002),
			minuteBar(2, 1000, 1008, 998, 1004),
			minuteBar(3, 1002, 1010, 1000, 1006),
			minuteBar(4, 1004, 1012, 1002, 1008),
			minuteBar(5, 1005, 1013, 1003, 1010),
			minuteBar(6, 1008, 1010, 1000, 1000),
		},
	}

	sess := session.New(cfg, provider, clock, nil, zerolog.Nop())
	live, err := sess.Run(context.Background(), []string{"7203"}, windows)
	require.NoError(t, err)

	assert.Equal(t, live.Watchlist, replayed.Watchlist)
	assert.Equal(t, live.Summary, replayed.Summary)
	assert.Equal(t, live.Signals, replayed.Signals)
}

func TestFileProviderBoardConsumption(t *testing.T) {
	cfg := replayConfig(t)
	loc := marketdata.JST()
	clock := session.NewVirtualClock(jstTime(8, 55, 0))

	p, err := NewFileProvider(cfg.ReplayAOICSV, cfg.ReplayMinuteDir, cfg.ReplayDate, loc, clock)
	require.NoError(t, err)
	assert.Equal(t, []string{"7203"}, p.Codes())

	ctx := context.Background()

	snap, err := p.FetchBoard(ctx, "7203")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.AOI(), 1e-12)
	assert.True(t, jstTime(8, 55, 0).Equal(snap.Timestamp))

	// Same instant again: the sample is consumed.
	_, err = p.FetchBoard(ctx, "7203")
	assert.ErrorIs(t, err, marketdata.ErrNoData)

	clock.Sleep(10 * time.Second)
	snap, err = p.FetchBoard(ctx, "7203")
	require.NoError(t, err)
	assert.InDelta(t, 0.45, snap.AOI(), 1e-12)

	// Jump past the remaining sample: only the most recent one is served.
	clock.Sleep(time.Minute)
	snap, err = p.FetchBoard(ctx, "7203")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.AOI(), 1e-12)
	assert.True(t, jstTime(8, 55, 20).Equal(snap.Timestamp))

	_, err = p.FetchBoard(ctx, "7203")
	assert.ErrorIs(t, err, marketdata.ErrNoData)
}

func TestFileProviderMinuteBarVisibility(t *testing.T) {
	cfg := replayConfig(t)
	clock := session.NewVirtualClock(jstTime(8, 59, 0))

	p, err := NewFileProvider(cfg.ReplayAOICSV, cfg.ReplayMinuteDir, cfg.ReplayDate, marketdata.JST(), clock)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = p.FetchMinuteBars(ctx, "7203")
	assert.ErrorIs(t, err, marketdata.ErrNoData, "no bars before the open")

	clock.Sleep(4*time.Minute + 30*time.Second) // 09:03:30
	bars, err := p.FetchMinuteBars(ctx, "7203")
	require.NoError(t, err)
	require.Len(t, bars, 4)
	assert.Equal(t, "7203", bars[0].Symbol)

	// Callers may mutate the returned slice without corrupting the store.
	bars[0].Close = -1
	again, err := p.FetchMinuteBars(ctx, "7203")
	require.NoError(t, err)
	assert.Equal(t, 900.0, again[0].Close)

	clock.Sleep(time.Hour)
	bars, err = p.FetchMinuteBars(ctx, "7203")
	require.NoError(t, err)
	assert.Len(t, bars, 7)
}

func TestFileProviderLoadErrors(t *testing.T) {
	loc := marketdata.JST()
	clock := session.NewVirtualClock(jstTime(8, 55, 0))

	t.Run("Missing AOI CSV", func(t *testing.T) {
		_, minuteDir := writeFixtures(t)
		_, err := NewFileProvider(filepath.Join(t.TempDir(), "nope.csv"), minuteDir, fixtureDate, loc, clock)
		assert.Error(t, err)
	})

	t.Run("Malformed AOI value", func(t *testing.T) {
		dir := t.TempDir()
		aoiCSV := filepath.Join(dir, "aoi.csv")
		bad := "code,timestamp,aoi\n7203,2025-09-02 08:55:00,not-a-number\n"
		require.NoError(t, os.WriteFile(aoiCSV, []byte(bad), 0o644))

		_, err := NewFileProvider(aoiCSV, dir, fixtureDate, loc, clock)
		assert.Error(t, err)
	})

	t.Run("Missing minute CSV for a sampled code", func(t *testing.T) {
		aoiCSV, _ := writeFixtures(t)
		_, err := NewFileProvider(aoiCSV, t.TempDir(), fixtureDate, loc, clock)
		assert.Error(t, err)
	})

	t.Run("Invalid bar rejected", func(t *testing.T) {
		aoiCSV, _ := writeFixtures(t)
		minuteDir := t.TempDir()
		bad := "datetime,open,high,low,close,volume\n2025-09-02 09:00:00,900,890,895,900,100\n"
		require.NoError(t, os.WriteFile(filepath.Join(minuteDir, "7203.csv"), []byte(bad), 0o644))

		_, err := NewFileProvider(aoiCSV, minuteDir, fixtureDate, loc, clock)
		assert.Error(t, err, "high below low must not load")
	})
}

func TestFileProviderFiltersOtherDays(t *testing.T) {
	loc := marketdata.JST()
	clock := session.NewVirtualClock(jstTime(8, 55, 0))

	dir := t.TempDir()
	aoiCSV := filepath.Join(dir, "aoi.csv")
	aoi := `code,timestamp,aoi
7203,2025-09-01 08:55:00,0.9
7203,2025-09-02 08:55:00,0.5
`
	require.NoError(t, os.WriteFile(aoiCSV, []byte(aoi), 0o644))

	minuteDir := filepath.Join(dir, "minutes")
	require.NoError(t, os.Mkdir(minuteDir, 0o755))
	minute := `datetime,open,high,low,close,volume
2025-09-01 09:00:00,500,505,495,500,100
2025-09-02 09:00:00,900,905,895,900,100
`
	require.NoError(t, os.WriteFile(filepath.Join(minuteDir, "7203.csv"), []byte(minute), 0o644))

	p, err := NewFileProvider(aoiCSV, minuteDir, fixtureDate, loc, clock)
	require.NoError(t, err)

	snap, err := p.FetchBoard(context.Background(), "7203")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, snap.AOI(), 1e-12, "previous day's sample is ignored")

	clock.Sleep(10 * time.Minute)
	bars, err := p.FetchMinuteBars(context.Background(), "7203")
	require.NoError(t, err)
	require.Len(t, bars, 1)
	assert.Equal(t, 900.0, bars[0].Open)
}
