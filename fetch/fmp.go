package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/tidwall/gjson"
)

const (
	// FMPBaseURL is the default FMP api base url.
	FMPBaseURL = "https://financialmodelingprep.com/stable"
	// FMPDefaultSymbol is the default FMP symbol for the tracked asset.
	FMPDefaultSymbol = "BTCUSD"
	// fmpMaxWindowDays is the maximum span of a single FMP end of day request.
	fmpMaxWindowDays = 1825
)

// FMPConfig represents the configuration for the FMP client.
type FMPConfig struct {
	// APIkey is the FMP API Key.
	APIKey string
	// BaseURL is the base URL for the FMP API.
	BaseURL string
	// Symbol is the FMP symbol of the tracked asset.
	Symbol string
	// Timeout is the outbound request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *FMPConfig) Validate() error {
	var errs error

	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp api key cannot be an empty string"))
	}
	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp base url cannot be an empty string"))
	}
	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("fmp symbol cannot be an empty string"))
	}

	return errs
}

// FMPClient represents the Financial Modeling Preparation (FMP) API client.
type FMPClient struct {
	cfg   *FMPConfig
	httpc *http.Client
	buf   *bytes.Buffer
}

// Ensure the FMPClient implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*FMPClient)(nil)

// NewFMPClient instantiates a new FMP client.
func NewFMPClient(cfg *FMPConfig) (*FMPClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &FMPClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
		buf:   bytes.NewBuffer(make([]byte, 0, 512)),
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *FMPClient) formURL(path string, params string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// MaxWindowDays returns the maximum number of days a single fetch can span.
func (c *FMPClient) MaxWindowDays() int {
	return fmpMaxWindowDays
}

// FetchDailyHistorical fetches end of day OHLCV rows for [start, end).
func (c *FMPClient) FetchDailyHistorical(ctx context.Context, start time.Time, end time.Time) (gjson.Result, error) {
	const dailyHistoricalPath = "/historical-price-eod/full"

	params := url.Values{}
	params.Add("symbol", c.cfg.Symbol)
	params.Add("apikey", c.cfg.APIKey)
	params.Add("from", start.Format(shared.DayLayout))
	// The upstream range is inclusive.
	params.Add("to", end.AddDate(0, 0, -1).Format(shared.DayLayout))

	return getJSON(ctx, c.httpc, c.formURL(dailyHistoricalPath, params.Encode()), nil)
}

// getJSON fetches and validates a json document from the provided url.
func getJSON(ctx context.Context, httpc *http.Client, formedURL string, headers map[string]string) (gjson.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, formedURL, nil)
	if err != nil {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, "",
			fmt.Errorf("creating request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, "",
			fmt.Errorf("fetching %s: %w", req.URL.Path, err))
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, "",
			fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, string(body),
			fmt.Errorf("unexpected status %d fetching %s", resp.StatusCode, req.URL.Path))
	}

	if !gjson.ValidBytes(body) {
		return gjson.Result{}, shared.NewError(shared.UpstreamFetchError, string(body),
			fmt.Errorf("invalid json fetching %s", req.URL.Path))
	}

	return gjson.ParseBytes(body), nil
}
