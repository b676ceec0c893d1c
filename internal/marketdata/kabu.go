package marketdata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ktsuji/asagake/internal/board"
)

// KabuClient talks to the local kabu Station HTTP API for pre-open board
// snapshots.
type KabuClient struct {
	baseURL     string
	apiKey      string
	exchange    int
	token       string
	client      *http.Client
	rateLimiter *rate.Limiter
	clock       func() time.Time
	logger      zerolog.Logger
}

func NewKabuClient(baseURL, apiKey string, exchange, rateLimitPerSec int, logger zerolog.Logger) *KabuClient {
	return &KabuClient{
		baseURL:     baseURL,
		apiKey:      apiKey,
		exchange:    exchange,
		client:      &http.Client{Timeout: 5 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Limit(rateLimitPerSec), rateLimitPerSec),
		clock:       time.Now,
		logger:      logger,
	}
}

type kabuTokenRequest struct {
	APIPassword string `json:"APIPassword"`
}

type kabuTokenResponse struct {
	ResultCode int    `json:"ResultCode"`
	Token      string `json:"Token"`
}

// Authenticate obtains an API token. kabu Station must be running with the
// API feature enabled.
func (k *KabuClient) Authenticate(ctx context.Context) error {
	body, err := json.Marshal(kabuTokenRequest{APIPassword: k.apiKey})
	if err != nil {
		return fmt.Errorf("marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, k.baseURL+"/token", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := k.client.Do(req)
	if err != nil {
		return fmt.Errorf("kabu token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("kabu token request failed: %s", resp.Status)
	}

	var tokenResp kabuTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if tokenResp.Token == "" {
		return fmt.Errorf("kabu token response contained no token")
	}

	k.token = tokenResp.Token
	k.logger.Info().Msg("kabu API authenticated")
	return nil
}

type kabuBoardLevel struct {
	Price float64 `json:"Price"`
	Qty   float64 `json:"Qty"`
}

type kabuBoardResponse struct {
	Symbol string `json:"Symbol"`

	Buy1  kabuBoardLevel `json:"Buy1"`
	Buy2  kabuBoardLevel `json:"Buy2"`
	Buy3  kabuBoardLevel `json:"Buy3"`
	Buy4  kabuBoardLevel `json:"Buy4"`
	Buy5  kabuBoardLevel `json:"Buy5"`
	Buy6  kabuBoardLevel `json:"Buy6"`
	Buy7  kabuBoardLevel `json:"Buy7"`
	Buy8  kabuBoardLevel `json:"Buy8"`
	Buy9  kabuBoardLevel `json:"Buy9"`
	Buy10 kabuBoardLevel `json:"Buy10"`

	Sell1  kabuBoardLevel `json:"Sell1"`
	Sell2  kabuBoardLevel `json:"Sell2"`
	Sell3  kabuBoardLevel `json:"Sell3"`
	Sell4  kabuBoardLevel `json:"Sell4"`
	Sell5  kabuBoardLevel `json:"Sell5"`
	Sell6  kabuBoardLevel `json:"Sell6"`
	Sell7  kabuBoardLevel `json:"Sell7"`
	Sell8  kabuBoardLevel `json:"Sell8"`
	Sell9  kabuBoardLevel `json:"Sell9"`
	Sell10 kabuBoardLevel `json:"Sell10"`
}

func (r *kabuBoardResponse) buyLevels() []kabuBoardLevel {
	return []kabuBoardLevel{r.Buy1, r.Buy2, r.Buy3, r.Buy4, r.Buy5, r.Buy6, r.Buy7, r.Buy8, r.Buy9, r.Buy10}
}

func (r *kabuBoardResponse) sellLevels() []kabuBoardLevel {
	return []kabuBoardLevel{r.Sell1, r.Sell2, r.Sell3, r.Sell4, r.Sell5, r.Sell6, r.Sell7, r.Sell8, r.Sell9, r.Sell10}
}

// FetchBoard retrieves and aggregates the board depth for a stock. Quantities
// across all ten levels on each side are summed into the snapshot.
func (k *KabuClient) FetchBoard(ctx context.Context, code string) (board.Snapshot, error) {
	if err := k.rateLimiter.Wait(ctx); err != nil {
		return board.Snapshot{}, err
	}

	url := fmt.Sprintf("%s/board/%s@%d", k.baseURL, code, k.exchange)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return board.Snapshot{}, fmt.Errorf("build board request: %w", err)
	}
	req.Header.Set("X-API-KEY", k.token)

	resp, err := k.client.Do(req)
	if err != nil {
		return board.Snapshot{}, fmt.Errorf("kabu board request for %s: %w", code, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return board.Snapshot{}, ErrNoData
	}
	if resp.StatusCode != http.StatusOK {
		return board.Snapshot{}, fmt.Errorf("kabu board request for %s failed: %s", code, resp.Status)
	}

	var b kabuBoardResponse
	if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
		return board.Snapshot{}, fmt.Errorf("decode board response for %s: %w", code, err)
	}

	var bidQty, askQty float64
	for _, lvl := range b.buyLevels() {
		bidQty += lvl.Qty
	}
	for _, lvl := range b.sellLevels() {
		askQty += lvl.Qty
	}

	return board.Snapshot{
		Code:      code,
		Timestamp: k.clock(),
		BidQty:    bidQty,
		AskQty:    askQty,
		BidPrice:  b.Buy1.Price,
		AskPrice:  b.Sell1.Price,
	}, nil
}
