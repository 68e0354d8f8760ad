package shared

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Side represents an order side.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// String stringifies the provided side.
func (s Side) String() string {
	return string(s)
}

// ParseSide parses the provided order side.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Buy:
		return Buy, nil
	case Sell:
		return Sell, nil
	default:
		return "", fmt.Errorf("unknown order side: %q", s)
	}
}

// OrderRecord represents a persisted order outcome.
type OrderRecord struct {
	Signal    Side
	OrderID   string
	CreatedAt time.Time
}

// OrderAcknowledgment represents the venue's acknowledgment of a submitted order.
type OrderAcknowledgment struct {
	// OrderID is the venue assigned order identifier.
	OrderID string `json:"orderId"`
	// Status is the venue reported order status.
	Status string `json:"status"`
	// ReceivedTime is the venue reported time the order was received.
	ReceivedTime string `json:"receivedTime,omitempty"`
	// Payload is the raw venue response.
	Payload string `json:"-"`
}

// AuthenticatedRequest represents a signed venue request. It is built per
// request and never persisted.
type AuthenticatedRequest struct {
	Path      string
	Nonce     string
	Body      string
	Signature string
}

// Trade represents an order placed as a result of a decision cycle.
type Trade struct {
	Side    Side            `json:"side"`
	Size    decimal.Decimal `json:"size"`
	OrderID string          `json:"orderId"`
	Status  string          `json:"status"`
}
