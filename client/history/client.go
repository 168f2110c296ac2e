package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/linluma/chartsync/shared/logger"
	"github.com/linluma/chartsync/shared/models"
)

// MaxLimit is the largest page the history endpoint serves
const MaxLimit = 5000

// ErrEmptyResponse is returned when the server answers without a body
var ErrEmptyResponse = errors.New("empty history response")

// APIError is a non-2xx answer from the market data API
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market data api returned %d: %s", e.Status, e.Message)
}

// AssetClass selects the symbol universe
type AssetClass string

const (
	AssetCrypto AssetClass = "crypto"
	AssetForex  AssetClass = "forex"
)

// DetectAssetClass treats slash separated pairs such as EUR/USD as forex
func DetectAssetClass(symbol string) AssetClass {
	if strings.Contains(symbol, "/") {
		return AssetForex
	}
	return AssetCrypto
}

// Options narrows a history request. Zero values are omitted
type Options struct {
	StartTime int64
	EndTime   int64
	Limit     int
}

// Response is the history endpoint payload
type Response struct {
	Symbol   string       `json:"symbol"`
	Interval string       `json:"interval"`
	Candles  []models.Bar `json:"candles"`
}

// Client fetches candles and symbols over REST
type Client struct {
	baseURL string
	http    *http.Client
	log     *logger.Logger
}

// NewClient creates a client for baseURL, e.g. http://localhost:8000/api/v1/market-data
func NewClient(baseURL string, timeout time.Duration, log *logger.Logger) *Client {
	if log == nil {
		log = logger.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log.WithFields(logger.NewField("component", "history")),
	}
}

// FetchCandles returns up to opts.Limit bars for symbol and interval in ascending time order
func (c *Client) FetchCandles(ctx context.Context, symbol string, interval models.Interval, opts Options) ([]models.Bar, error) {
	if opts.Limit < 0 || opts.Limit > MaxLimit {
		return nil, fmt.Errorf("limit %d out of range [1, %d]", opts.Limit, MaxLimit)
	}

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", string(interval))
	if opts.StartTime != 0 {
		params.Set("start_time", strconv.FormatInt(opts.StartTime, 10))
	}
	if opts.EndTime != 0 {
		params.Set("end_time", strconv.FormatInt(opts.EndTime, 10))
	}
	if opts.Limit != 0 {
		params.Set("limit", strconv.Itoa(opts.Limit))
	}

	var resp Response
	if err := c.get(ctx, "/history", params, &resp); err != nil {
		return nil, fmt.Errorf("failed to fetch %s@%s history: %w", symbol, interval, err)
	}

	c.log.Debug("history fetched",
		logger.NewField("symbol", symbol),
		logger.NewField("interval", string(interval)),
		logger.NewField("count", len(resp.Candles)),
	)
	return resp.Candles, nil
}

// FetchSymbols lists the tradable symbols of an asset class
func (c *Client) FetchSymbols(ctx context.Context, class AssetClass) ([]string, error) {
	params := url.Values{}
	params.Set("asset_class", string(class))

	var symbols []string
	if err := c.get(ctx, "/symbols", params, &symbols); err != nil {
		return nil, fmt.Errorf("failed to fetch %s symbols: %w", class, err)
	}
	return symbols, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	reqURL := c.baseURL + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, body)
	}
	if len(body) == 0 {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// newAPIError prefers the body's detail, then message, then a generic text
func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Detail  interface{} `json:"detail"`
		Message string      `json:"message"`
	}
	message := fmt.Sprintf("Request failed with status %d", status)
	if err := json.Unmarshal(body, &payload); err == nil {
		switch detail := payload.Detail.(type) {
		case string:
			if detail != "" {
				message = detail
			}
		case nil:
			if payload.Message != "" {
				message = payload.Message
			}
		default:
			// validation errors carry a structured detail
			if raw, err := json.Marshal(detail); err == nil {
				message = string(raw)
			}
		}
	}
	return &APIError{Status: status, Message: message}
}
