package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	alpacaPaperURL = "https://paper-api.alpaca.markets"
	alpacaLiveURL  = "https://api.alpaca.markets"
	alpacaDataURL  = "https://data.alpaca.markets"
)

// HTTPAlpacaClient is the REST implementation of AlpacaClient. Requests are
// rate limited client-side and carry a hard timeout.
type HTTPAlpacaClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	dataURL   string
	client    *http.Client
	limiter   *rate.Limiter
}

// NewHTTPAlpacaClient builds a client from explicit credentials. An empty
// baseURL selects the paper or live endpoint from the paper flag.
func NewHTTPAlpacaClient(apiKey, apiSecret, baseURL string, paper bool) (*HTTPAlpacaClient, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("alpaca credentials missing: set ALPACA_API_KEY_ID and ALPACA_API_SECRET_KEY")
	}
	if baseURL == "" {
		if paper {
			baseURL = alpacaPaperURL
		} else {
			baseURL = alpacaLiveURL
		}
	}
	return &HTTPAlpacaClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   strings.TrimRight(baseURL, "/"),
		dataURL:   alpacaDataURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(3), 1),
	}, nil
}

// NewHTTPAlpacaClientFromEnv reads credentials from the environment.
func NewHTTPAlpacaClientFromEnv(baseURL string, paper bool) (*HTTPAlpacaClient, error) {
	return NewHTTPAlpacaClient(
		os.Getenv("ALPACA_API_KEY_ID"),
		os.Getenv("ALPACA_API_SECRET_KEY"),
		baseURL,
		paper,
	)
}

func (c *HTTPAlpacaClient) sendRequest(ctx context.Context, method, url string, payload any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("APCA-API-KEY-ID", c.apiKey)
	req.Header.Set("APCA-API-SECRET-KEY", c.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return &apiError{Status: resp.StatusCode, Body: string(respBody)}
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("alpaca API error %d: %s", e.Status, e.Body)
}

func (c *HTTPAlpacaClient) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Trade struct {
			Price float64 `json:"p"`
		} `json:"trade"`
	}
	url := fmt.Sprintf("%s/v2/stocks/%s/trades/latest", c.dataURL, symbol)
	if err := c.sendRequest(ctx, http.MethodGet, url, nil, &out); err != nil {
		return 0, err
	}
	return out.Trade.Price, nil
}

func (c *HTTPAlpacaClient) IsMarketOpen(ctx context.Context) (bool, error) {
	var out struct {
		IsOpen bool `json:"is_open"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/v2/clock", nil, &out); err != nil {
		return false, err
	}
	return out.IsOpen, nil
}

func (c *HTTPAlpacaClient) GetAccount(ctx context.Context) (Account, error) {
	var out struct {
		Cash        string `json:"cash"`
		Equity      string `json:"equity"`
		LastEquity  string `json:"last_equity"`
		BuyingPower string `json:"buying_power"`
	}
	if err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/v2/account", nil, &out); err != nil {
		return Account{}, err
	}
	return Account{
		Cash:        parseFloat(out.Cash),
		Equity:      parseFloat(out.Equity),
		LastEquity:  parseFloat(out.LastEquity),
		BuyingPower: parseFloat(out.BuyingPower),
	}, nil
}

func (c *HTTPAlpacaClient) GetPosition(ctx context.Context, symbol string) (float64, error) {
	var out struct {
		Qty string `json:"qty"`
	}
	err := c.sendRequest(ctx, http.MethodGet, c.baseURL+"/v2/positions/"+symbol, nil, &out)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			// No open position.
			return 0, nil
		}
		return 0, err
	}
	return parseFloat(out.Qty), nil
}

func (c *HTTPAlpacaClient) SubmitOrder(ctx context.Context, req OrderRequest) (OrderAck, error) {
	payload := map[string]any{
		"symbol":         req.Symbol,
		"side":           string(req.Side),
		"qty":            strconv.FormatFloat(req.Qty, 'f', -1, 64),
		"type":           string(req.Type),
		"time_in_force":  req.TimeInForce,
		"extended_hours": req.ExtendedHours,
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := c.sendRequest(ctx, http.MethodPost, c.baseURL+"/v2/orders", payload, &out); err != nil {
		return OrderAck{}, err
	}
	return OrderAck{ID: out.ID, Status: out.Status}, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}
