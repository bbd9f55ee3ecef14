package settlement

import (
	"context"

	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/repository"
	"cloudfund-settlement/pkg/sequence"
	"cloudfund-settlement/services/balance"
	"cloudfund-settlement/services/campaign"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

// CustodySender is the outbound half of the custody account: payouts
// and refunds always originate from it.
type CustodySender interface {
	Address() string
	Send(ctx context.Context, to string, amount decimal.Decimal) (*chainrpc.Receipt, error)
}

// AddressResolver maps a user to their ledger address. An empty address
// with a nil error means the user has none bound.
type AddressResolver interface {
	AddressOf(ctx context.Context, userID string) (string, error)
}

// Service drives the settlement workflows: accepting pledges, seller
// cancellation, the expiry sweep, and operator payout retries. All value
// movement pairs a row-locked database transaction with an irreversible
// ledger transfer; the transfer is the point of no return, so state is
// only written after the node has answered.
type Service struct {
	db      *gorm.DB
	node    *snowflake.Node
	seq     sequence.Generator
	chain   chainrpc.TransferClient
	custody CustodySender
	addrs   AddressResolver
	rate    Rate

	campaign repository.Repository[campaign.Campaign]
	pledge   repository.Repository[campaign.Pledge]
}

type ServiceParams struct {
	fx.In
	DB      *gorm.DB
	Node    *snowflake.Node
	Seq     sequence.Generator
	Chain   chainrpc.TransferClient
	Custody CustodySender
	Addrs   AddressResolver
	Rate    Rate
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:      p.DB,
		node:    p.Node,
		seq:     p.Seq,
		chain:   p.Chain,
		custody: p.Custody,
		addrs:   p.Addrs,
		rate:    p.Rate,

		campaign: repository.ProvideStore[campaign.Campaign](p.DB),
		pledge:   repository.ProvideStore[campaign.Pledge](p.DB),
	}
}

var _ AddressResolver = (*balance.Service)(nil)
var _ CustodySender = (*chainrpc.Custodian)(nil)
