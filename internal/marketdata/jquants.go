package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ktsuji/asagake/internal/candle"
)

// JQuantsClient talks to the J-Quants REST API for intraday minute bars and
// listing metadata.
type JQuantsClient struct {
	baseURL     string
	email       string
	password    string
	idToken     string
	client      *http.Client
	rateLimiter *rate.Limiter
	clock       func() time.Time
	logger      zerolog.Logger

	mu    sync.RWMutex
	names map[string]string
}

func NewJQuantsClient(baseURL, email, password string, rateLimitPerSec int, logger zerolog.Logger) *JQuantsClient {
	return &JQuantsClient{
		baseURL:     baseURL,
		email:       email,
		password:    password,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimitPerSec), rateLimitPerSec),
		clock:       time.Now,
		logger:      logger,
		names:       make(map[string]string),
	}
}

type jquantsRefreshResponse struct {
	RefreshToken string `json:"refreshToken"`
}

type jquantsIDResponse struct {
	IDToken string `json:"idToken"`
}

// Authenticate performs the two-step token exchange: credentials for a
// refresh token, refresh token for an id token used as a bearer.
func (j *JQuantsClient) Authenticate(ctx context.Context) error {
	refreshBody, err := json.Marshal(map[string]string{
		"mailaddress": j.email,
		"password":    j.password,
	})
	if err != nil {
		return fmt.Errorf("marshal auth request: %w", err)
	}

	var refreshResp jquantsRefreshResponse
	if err := j.postJSON(ctx, "/token/auth_user", refreshBody, &refreshResp); err != nil {
		return fmt.Errorf("jquants auth_user: %w", err)
	}
	if refreshResp.RefreshToken == "" {
		return fmt.Errorf("jquants auth_user returned no refresh token")
	}

	idBody, err := json.Marshal(map[string]string{"refreshtoken": refreshResp.RefreshToken})
	if err != nil {
		return fmt.Errorf("marshal refresh request: %w", err)
	}

	var idResp jquantsIDResponse
	if err := j.postJSON(ctx, "/token/auth_refresh", idBody, &idResp); err != nil {
		return fmt.Errorf("jquants auth_refresh: %w", err)
	}
	if idResp.IDToken == "" {
		return fmt.Errorf("jquants auth_refresh returned no id token")
	}

	j.idToken = idResp.IDToken
	j.logger.Info().Msg("J-Quants API authenticated")
	return nil
}

func (j *JQuantsClient) postJSON(ctx context.Context, path string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := j.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (j *JQuantsClient) getJSON(ctx context.Context, path string, out any) error {
	if err := j.rateLimiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, j.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+j.idToken)

	resp, err := j.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request failed: %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

type jquantsMinuteBar struct {
	DateTime string  `json:"DateTime"`
	Open     float64 `json:"Open"`
	High     float64 `json:"High"`
	Low      float64 `json:"Low"`
	Close    float64 `json:"Close"`
	Volume   float64 `json:"Volume"`
}

type jquantsMinutesResponse struct {
	Minutes []jquantsMinuteBar `json:"minutes"`
}

// FetchMinuteBars returns today's 1-minute OHLCV for a stock. Malformed rows
// are rejected at this boundary so the core only ever sees clean bars.
func (j *JQuantsClient) FetchMinuteBars(ctx context.Context, code string) ([]candle.Candle, error) {
	date := j.clock().Format("2006-01-02")
	path := fmt.Sprintf("/markets/minutes?code=%s&date=%s", code, date)

	var minutesResp jquantsMinutesResponse
	if err := j.getJSON(ctx, path, &minutesResp); err != nil {
		return nil, err
	}
	if len(minutesResp.Minutes) == 0 {
		return nil, ErrNoData
	}

	bars := make([]candle.Candle, 0, len(minutesResp.Minutes))
	for _, m := range minutesResp.Minutes {
		ts, err := parseJSTTime(m.DateTime)
		if err != nil {
			j.logger.Warn().Str("code", code).Str("datetime", m.DateTime).Msg("skipping bar with bad timestamp")
			continue
		}
		c := candle.Candle{
			Timestamp: ts,
			Open:      m.Open,
			High:      m.High,
			Low:       m.Low,
			Close:     m.Close,
			Volume:    m.Volume,
			Symbol:    code,
		}
		if err := c.Validate(); err != nil {
			j.logger.Warn().Str("code", code).Err(err).Msg("skipping invalid bar")
			continue
		}
		bars = append(bars, c)
	}
	if len(bars) == 0 {
		return nil, ErrNoData
	}
	return candle.Normalize(bars), nil
}

type jquantsListedItem struct {
	Code           string `json:"Code"`
	CompanyName    string `json:"CompanyName"`
	MarketCodeName string `json:"MarketCodeName"`
}

type jquantsListedResponse struct {
	Info []jquantsListedItem `json:"info"`
}

// FetchPrimeCodes returns today's TSE Prime stock codes.
func (j *JQuantsClient) FetchPrimeCodes(ctx context.Context) ([]string, error) {
	if err := j.loadListedInfo(ctx); err != nil {
		return nil, err
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	codes := make([]string, 0, len(j.names))
	for code := range j.names {
		codes = append(codes, code)
	}
	return codes, nil
}

func (j *JQuantsClient) loadListedInfo(ctx context.Context) error {
	date := j.clock().Format("2006-01-02")

	var listedResp jquantsListedResponse
	if err := j.getJSON(ctx, "/listed/info?date="+date, &listedResp); err != nil {
		return fmt.Errorf("jquants listed info: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	for _, item := range listedResp.Info {
		if item.Code == "" {
			continue
		}
		if strings.Contains(item.MarketCodeName, "プライム") || item.MarketCodeName == "Prime" {
			j.names[item.Code] = item.CompanyName
		}
	}
	return nil
}

// ResolveName returns the company name from the listing cache, falling back
// to the code itself.
func (j *JQuantsClient) ResolveName(ctx context.Context, code string) string {
	j.mu.RLock()
	name, ok := j.names[code]
	j.mu.RUnlock()
	if ok && name != "" {
		return name
	}

	if err := j.loadListedInfo(ctx); err != nil {
		return code
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if name := j.names[code]; name != "" {
		return name
	}
	return code
}

func parseJSTTime(value string) (time.Time, error) {
	loc := JST()
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02 15:04:05"} {
		if ts, err := time.ParseInLocation(layout, value, loc); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", value)
}

// JST returns the Tokyo timezone, falling back to a fixed +09:00 offset when
// the tz database is unavailable.
func JST() *time.Location {
	loc, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		return time.FixedZone("JST", 9*60*60)
	}
	return loc
}
