package chainrpc

import (
	"context"
	"sync"

	"cloudfund-settlement/pkg/config"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Custodian serializes every outbound transfer from the platform's
// custodial address. Payouts and refunds from concurrent workflows all
// submit from the same account, so each submission takes a freshly
// observed sequence number under the custodian's lock; a nonce conflict
// is retried exactly once with another fresh nonce.
type Custodian struct {
	client  *Client
	address string

	mu sync.Mutex
}

type CustodianParams struct {
	fx.In
	Client *Client
	Config *config.Config
}

func NewCustodian(p CustodianParams) *Custodian {
	return &Custodian{
		client:  p.Client,
		address: p.Config.Chain.CustodyAddress,
	}
}

// Address returns the custodial account address.
func (c *Custodian) Address() string {
	return c.address
}

// Send moves amount from the custodial address to the given recipient.
func (c *Custodian) Send(ctx context.Context, to string, amount decimal.Decimal) (*Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nonce, err := c.client.PendingNonce(ctx, c.address)
	if err != nil {
		return nil, err
	}

	receipt, err := c.client.TransferWithNonce(ctx, c.address, to, amount, nonce)
	if err == nil || !Retriable(err) {
		return receipt, err
	}

	zap.L().Warn("custodial transfer hit nonce conflict, retrying with fresh nonce",
		zap.String("to", to),
		zap.Uint64("nonce", nonce),
		zap.Error(err),
	)

	nonce, err = c.client.PendingNonce(ctx, c.address)
	if err != nil {
		return nil, err
	}

	return c.client.TransferWithNonce(ctx, c.address, to, amount, nonce)
}
