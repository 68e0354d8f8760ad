package exchange

import (
	"fmt"
	"strconv"
	"time"

	"go.uber.org/atomic"
)

const (
	// nonceCounterModulus bounds the rolling counter to five digits.
	nonceCounterModulus = 100000
)

// NonceGenerator produces strictly increasing request nonces for the process.
type NonceGenerator struct {
	counter atomic.Uint32
	now     func() time.Time
}

// NewNonceGenerator initializes a nonce generator.
func NewNonceGenerator() *NonceGenerator {
	return &NonceGenerator{now: time.Now}
}

// Next returns the next nonce, the current unix time in milliseconds followed
// by a zero-padded five digit rolling counter.
func (g *NonceGenerator) Next() string {
	count := g.counter.Inc() % nonceCounterModulus
	ms := g.now().UnixMilli()

	return strconv.FormatInt(ms, 10) + fmt.Sprintf("%05d", count)
}
