package fetch

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dnldd/augur/shared"
	"github.com/tidwall/gjson"
)

const (
	// CoinGeckoBaseURL is the default CoinGecko api base url.
	CoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	// CoinGeckoDefaultCoin is the default CoinGecko coin id for the tracked asset.
	CoinGeckoDefaultCoin = "bitcoin"
	// coinGeckoMaxWindowDays is the maximum span of a single range request on
	// the public api.
	coinGeckoMaxWindowDays = 365
	// defaultTimeout is the default outbound request timeout.
	defaultTimeout = time.Second * 10
)

// CoinGeckoConfig represents the configuration for the CoinGecko client.
type CoinGeckoConfig struct {
	// APIKey is the optional CoinGecko demo api key.
	APIKey string
	// BaseURL is the base URL for the CoinGecko API.
	BaseURL string
	// Coin is the CoinGecko id of the tracked asset.
	Coin string
	// Currency is the quote currency.
	Currency string
	// Timeout is the outbound request timeout.
	Timeout time.Duration
}

// Validate asserts the config sane inputs.
func (cfg *CoinGeckoConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("coingecko base url cannot be an empty string"))
	}
	if cfg.Coin == "" {
		errs = errors.Join(errs, fmt.Errorf("coingecko coin cannot be an empty string"))
	}
	if cfg.Currency == "" {
		errs = errors.Join(errs, fmt.Errorf("coingecko currency cannot be an empty string"))
	}

	return errs
}

// CoinGeckoClient represents the CoinGecko market data client.
type CoinGeckoClient struct {
	cfg   *CoinGeckoConfig
	httpc *http.Client
	buf   *bytes.Buffer
}

// Ensure the CoinGeckoClient implements the MarketFetcher interface.
var _ shared.MarketFetcher = (*CoinGeckoClient)(nil)

// NewCoinGeckoClient instantiates a new CoinGecko client.
func NewCoinGeckoClient(cfg *CoinGeckoConfig) (*CoinGeckoClient, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "", err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &CoinGeckoClient{
		cfg:   cfg,
		httpc: &http.Client{Timeout: timeout},
		buf:   bytes.NewBuffer(make([]byte, 0, 256)),
	}, nil
}

// formURL creates full urls including paramters for the api.
func (c *CoinGeckoClient) formURL(path string, params string) string {
	c.buf.WriteString(c.cfg.BaseURL)
	c.buf.WriteString(path)
	c.buf.WriteString("?")
	c.buf.WriteString(params)
	url := c.buf.String()
	c.buf.Reset()

	return url
}

// MaxWindowDays returns the maximum number of days a single fetch can span.
func (c *CoinGeckoClient) MaxWindowDays() int {
	return coinGeckoMaxWindowDays
}

// FetchDailyHistorical fetches the price and volume series for [start, end).
func (c *CoinGeckoClient) FetchDailyHistorical(ctx context.Context, start time.Time, end time.Time) (gjson.Result, error) {
	params := url.Values{}
	params.Add("vs_currency", c.cfg.Currency)
	params.Add("from", strconv.FormatInt(start.Unix(), 10))
	params.Add("to", strconv.FormatInt(end.Unix()-1, 10))

	var headers map[string]string
	if c.cfg.APIKey != "" {
		headers = map[string]string{"x-cg-demo-api-key": c.cfg.APIKey}
	}

	path := "/coins/" + url.PathEscape(c.cfg.Coin) + "/market_chart/range"
	return getJSON(ctx, c.httpc, c.formURL(path, params.Encode()), headers)
}
