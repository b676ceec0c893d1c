// Package replay
package replay

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/ktsuji/asagake/internal/board"
	"github.com/ktsuji/asagake/internal/candle"
	"github.com/ktsuji/asagake/internal/marketdata"
	"github.com/ktsuji/asagake/internal/session"
)

type aoiRow struct {
	ts    time.Time
	ratio float64
}

// FileProvider feeds the pipeline from static fixture files. Board snapshots
// are released one per recorded sample as the virtual clock reaches their
// timestamps, and minute bars become visible once their timestamp has
// passed, so a replay observes exactly what a live run would have.
type FileProvider struct {
	clock   *session.VirtualClock
	samples map[string][]aoiRow
	cursor  map[string]int
	bars    map[string][]candle.Candle
	codes   []string
}

// NewFileProvider loads the AOI samples CSV and the per-code minute CSV
// directory for one trading date. Malformed rows are rejected here; the core
// only sees clean typed input.
func NewFileProvider(aoiCSV, minuteDir, date string, loc *time.Location, clock *session.VirtualClock) (*FileProvider, error) {
	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("parse replay date: %w", err)
	}

	p := &FileProvider{
		clock:   clock,
		samples: make(map[string][]aoiRow),
		cursor:  make(map[string]int),
		bars:    make(map[string][]candle.Candle),
	}

	if err := p.loadAOISamples(aoiCSV, day, loc); err != nil {
		return nil, err
	}
	for _, code := range p.codes {
		if err := p.loadMinuteBars(minuteDir, code, day, loc); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// Codes returns the screening universe in file order.
func (p *FileProvider) Codes() []string { return p.codes }

func (p *FileProvider) Authenticate(ctx context.Context) error { return nil }

func (p *FileProvider) ResolveName(ctx context.Context, code string) string { return code }

// FetchBoard returns the most recent unconsumed AOI sample at or before the
// virtual now, reconstructed as a synthetic board whose imbalance equals the
// recorded ratio exactly.
func (p *FileProvider) FetchBoard(ctx context.Context, code string) (board.Snapshot, error) {
	rows := p.samples[code]
	i := p.cursor[code]

	last := -1
	for i < len(rows) && !rows[i].ts.After(p.clock.Now()) {
		last = i
		i++
	}
	if last < 0 {
		return board.Snapshot{}, marketdata.ErrNoData
	}
	p.cursor[code] = i

	row := rows[last]
	return board.Snapshot{
		Code:      code,
		Timestamp: row.ts,
		BidQty:    (1 + row.ratio) / 2,
		AskQty:    (1 - row.ratio) / 2,
	}, nil
}

// FetchMinuteBars returns all bars with timestamps at or before the virtual
// now, mirroring what the live feed would have served at that instant.
func (p *FileProvider) FetchMinuteBars(ctx context.Context, code string) ([]candle.Candle, error) {
	all := p.bars[code]
	now := p.clock.Now()

	n := 0
	for n < len(all) && !all[n].Timestamp.After(now) {
		n++
	}
	if n == 0 {
		return nil, marketdata.ErrNoData
	}
	out := make([]candle.Candle, n)
	copy(out, all[:n])
	return out, nil
}

func (p *FileProvider) loadAOISamples(path string, day time.Time, loc *time.Location) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open AOI CSV: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read AOI CSV header: %w", err)
	}
	codeIdx, tsIdx, aoiIdx := columnIndexes(header, "code", "timestamp", "aoi")
	if codeIdx < 0 || tsIdx < 0 || aoiIdx < 0 {
		return fmt.Errorf("AOI CSV must contain code, timestamp and aoi columns")
	}

	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read AOI CSV: %w", err)
		}

		code := strings.TrimSpace(record[codeIdx])
		ts, err := parseTimestamp(record[tsIdx], loc)
		if err != nil {
			return fmt.Errorf("AOI CSV row for %s: %w", code, err)
		}
		if !sameDay(ts, day) {
			continue
		}
		ratio, err := strconv.ParseFloat(strings.TrimSpace(record[aoiIdx]), 64)
		if err != nil {
			return fmt.Errorf("AOI CSV row for %s: bad aoi value: %w", code, err)
		}

		if _, seen := p.samples[code]; !seen {
			p.codes = append(p.codes, code)
		}
		p.samples[code] = append(p.samples[code], aoiRow{ts: ts, ratio: ratio})
	}
	return nil
}

func (p *FileProvider) loadMinuteBars(dir, code string, day time.Time, loc *time.Location) error {
	date := day.Format("2006-01-02")
	candidates := []string{
		filepath.Join(dir, code+".csv"),
		filepath.Join(dir, code+"_"+date+".csv"),
		filepath.Join(dir, date+"_"+code+".csv"),
	}

	var path string
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			path = c
			break
		}
	}
	if path == "" {
		return fmt.Errorf("minute CSV for %s not found in %s", code, dir)
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open minute CSV: %w", err)
	}
	defer file.Close()

	r := csv.NewReader(file)
	header, err := r.Read()
	if err != nil {
		return fmt.Errorf("read minute CSV header: %w", err)
	}
	tsIdx, oIdx, hIdx := columnIndexes(header, "datetime", "open", "high")
	lIdx, cIdx, vIdx := columnIndexes(header, "low", "close", "volume")
	if tsIdx < 0 || oIdx < 0 || hIdx < 0 || lIdx < 0 || cIdx < 0 || vIdx < 0 {
		return fmt.Errorf("minute CSV %s missing required columns", path)
	}

	var bars []candle.Candle
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("read minute CSV %s: %w", path, err)
		}

		ts, err := parseTimestamp(record[tsIdx], loc)
		if err != nil {
			return fmt.Errorf("minute CSV %s: %w", path, err)
		}
		if !sameDay(ts, day) {
			continue
		}

		values := make([]float64, 5)
		for i, idx := range []int{oIdx, hIdx, lIdx, cIdx, vIdx} {
			v, err := strconv.ParseFloat(strings.TrimSpace(record[idx]), 64)
			if err != nil {
				return fmt.Errorf("minute CSV %s: bad value %q: %w", path, record[idx], err)
			}
			values[i] = v
		}

		c := candle.Candle{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
			Symbol:    code,
		}
		if err := c.Validate(); err != nil {
			return fmt.Errorf("minute CSV %s: invalid bar at %s: %w", path, ts, err)
		}
		bars = append(bars, c)
	}

	p.bars[code] = candle.Normalize(bars)
	return nil
}

// columnIndexes returns the positions of up to three named columns,
// case-insensitively, or -1 for columns not present.
func columnIndexes(header []string, a, b, c string) (int, int, int) {
	find := func(name string) int {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
		return -1
	}
	return find(a), find(b), find(c)
}

func parseTimestamp(value string, loc *time.Location) (time.Time, error) {
	value = strings.TrimSpace(value)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02T15:04:05"} {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

func sameDay(ts, day time.Time) bool {
	y1, m1, d1 := ts.Date()
	y2, m2, d2 := day.Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}
