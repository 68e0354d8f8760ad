package exchange

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/dnldd/augur/shared"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
)

const (
	// BaseURL is the default futures venue url.
	BaseURL = "https://futures.kraken.com"
	// DefaultSymbol is the default traded contract.
	DefaultSymbol = "PF_XBTUSD"
	// sendOrderPath is the order submission endpoint path.
	sendOrderPath = "/derivatives/api/v3/sendorder"
	// successResult is the result marker of an accepted request.
	successResult = "success"
	// placedStatus is the send status of an order accepted onto the book.
	placedStatus = "placed"
	// defaultTimeout is the default outbound request timeout.
	defaultTimeout = time.Second * 10
)

// ClientConfig represents the exchange client configuration.
type ClientConfig struct {
	// BaseURL is the venue base url.
	BaseURL string
	// APIKey is the venue api key.
	APIKey string
	// APISecret is the base64 encoded venue api secret.
	APISecret string
	// Symbol is the traded contract.
	Symbol string
	// Timeout is the outbound request timeout.
	Timeout time.Duration
	// Nonces generates request nonces.
	Nonces *NonceGenerator
	// Logger represents the application logger.
	Logger *zerolog.Logger
}

// Validate asserts the config sane inputs.
func (cfg *ClientConfig) Validate() error {
	var errs error

	if cfg.BaseURL == "" {
		errs = errors.Join(errs, fmt.Errorf("base url cannot be an empty string"))
	}
	if cfg.APIKey == "" {
		errs = errors.Join(errs, fmt.Errorf("api key cannot be an empty string"))
	}
	if cfg.APISecret == "" {
		errs = errors.Join(errs, fmt.Errorf("api secret cannot be an empty string"))
	}
	if cfg.Symbol == "" {
		errs = errors.Join(errs, fmt.Errorf("symbol cannot be an empty string"))
	}
	if cfg.Nonces == nil {
		errs = errors.Join(errs, fmt.Errorf("nonce generator cannot be nil"))
	}
	if cfg.Logger == nil {
		errs = errors.Join(errs, fmt.Errorf("logger cannot be nil"))
	}

	return errs
}

// Client represents the futures venue trading client.
type Client struct {
	cfg    *ClientConfig
	signer *Signer
	httpc  *http.Client
}

// Ensure the client implements the OrderSubmitter interface.
var _ shared.OrderSubmitter = (*Client)(nil)

// NewClient initializes a new exchange client.
func NewClient(cfg *ClientConfig) (*Client, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, shared.NewError(shared.ConfigurationError, "", err)
	}

	signer, err := NewSigner(cfg.APISecret)
	if err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		cfg:    cfg,
		signer: signer,
		httpc:  &http.Client{Timeout: timeout},
	}, nil
}

// marketOrderBody forms the url encoded body of a market order. The field
// order is fixed since the venue authenticates the body as sent.
func marketOrderBody(symbol string, side shared.Side, size decimal.Decimal) string {
	return "orderType=mkt&symbol=" + symbol + "&side=" + side.String() +
		"&size=" + size.String() + "&limitPrice="
}

// authenticate signs the provided request.
func (c *Client) authenticate(path string, body string) *shared.AuthenticatedRequest {
	nonce := c.cfg.Nonces.Next()

	return &shared.AuthenticatedRequest{
		Path:      path,
		Nonce:     nonce,
		Body:      body,
		Signature: c.signer.Sign(path, nonce, body),
	}
}

// post submits the provided authenticated request and returns the response body.
func (c *Client) post(ctx context.Context, areq *shared.AuthenticatedRequest) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+areq.Path,
		bytes.NewBufferString(areq.Body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("APIKey", c.cfg.APIKey)
	req.Header.Set("Nonce", areq.Nonce)
	req.Header.Set("Authent", areq.Signature)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Content-Length", strconv.Itoa(len(areq.Body)))
	req.ContentLength = int64(len(areq.Body))

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("posting to %s: %w", areq.Path, err)
	}

	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	return body, nil
}

// SubmitMarketOrder submits a market order of the provided side and size. The
// order is sent exactly once, failures are never retried.
func (c *Client) SubmitMarketOrder(ctx context.Context, side shared.Side, size decimal.Decimal) (*shared.OrderAcknowledgment, error) {
	if side != shared.Buy && side != shared.Sell {
		return nil, shared.Errorf(shared.ExchangeError, "unknown order side: %q", side)
	}
	if !size.IsPositive() {
		return nil, shared.Errorf(shared.ExchangeError, "order size must be positive, got %s", size)
	}

	body := marketOrderBody(c.cfg.Symbol, side, size)
	areq := c.authenticate(sendOrderPath, body)

	c.cfg.Logger.Info().Str("side", side.String()).Str("size", size.String()).
		Str("symbol", c.cfg.Symbol).Str("nonce", areq.Nonce).Msg("submitting market order")

	payload, err := c.post(ctx, areq)
	if err != nil {
		return nil, shared.NewError(shared.ExchangeError, "", fmt.Errorf("submitting market order: %w", err))
	}

	ack, err := parseSendStatus(payload)
	if err != nil {
		c.cfg.Logger.Debug().Msgf("rejected order response: %s", spew.Sdump(string(payload)))
		return nil, err
	}

	c.cfg.Logger.Info().Str("orderID", ack.OrderID).Str("status", ack.Status).Msg("market order acknowledged")

	return ack, nil
}

// parseSendStatus interprets the venue's order submission response.
func parseSendStatus(payload []byte) (*shared.OrderAcknowledgment, error) {
	raw := string(payload)
	if !gjson.ValidBytes(payload) {
		return nil, shared.NewError(shared.ExchangeError, raw, fmt.Errorf("malformed order response"))
	}

	resp := gjson.ParseBytes(payload)
	result := resp.Get("result").String()
	if result != successResult {
		return nil, shared.NewError(shared.ExchangeError, raw,
			fmt.Errorf("order rejected with result %q: %s", result, resp.Get("error").String()))
	}

	// The venue can report success with an order id while the order itself
	// was refused (e.g. insufficientAvailableFunds).
	status := resp.Get("sendStatus")
	orderID := status.Get("order_id").String()
	state := status.Get("status").String()
	if orderID == "" || state != placedStatus {
		return nil, shared.NewError(shared.ExchangeError, raw,
			fmt.Errorf("order not placed, status %q", state))
	}

	return &shared.OrderAcknowledgment{
		OrderID:      orderID,
		Status:       state,
		ReceivedTime: status.Get("receivedTime").String(),
		Payload:      raw,
	}, nil
}
