package settlement

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/repository"
	"cloudfund-settlement/services/campaign"
	"cloudfund-settlement/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const (
	custodyAddr = "0xcccccccccccccccccccccccccccccccccccccccc"
	sellerAddr  = "0x5e11e75e11e75e11e75e11e75e11e75e11e75e11"
)

type fakeSequence struct{ n int }

func (f *fakeSequence) NextCampaignCode(context.Context) (string, error) {
	f.n++
	return fmt.Sprintf("CMP-%03d", f.n), nil
}

func (f *fakeSequence) NextPledgeCode(context.Context, string) (string, error) {
	f.n++
	return fmt.Sprintf("PLG-%03d", f.n), nil
}

type chainTransfer struct {
	From, To string
	Amount   decimal.Decimal
}

type fakeChain struct {
	mu          sync.Mutex
	transfers   []chainTransfer
	transferErr error
	balances    map[string]decimal.Decimal
}

func (f *fakeChain) BalanceOf(_ context.Context, address string) (decimal.Decimal, error) {
	return f.balances[address], nil
}

func (f *fakeChain) Transfer(_ context.Context, from, to string, amount decimal.Decimal) (*chainrpc.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	f.transfers = append(f.transfers, chainTransfer{From: from, To: to, Amount: amount})
	return &chainrpc.Receipt{TxHash: fmt.Sprintf("0xin%d", len(f.transfers))}, nil
}

type fakeCustody struct {
	mu      sync.Mutex
	sends   []chainTransfer
	failFor map[string]error
}

func (f *fakeCustody) Address() string { return custodyAddr }

func (f *fakeCustody) Send(_ context.Context, to string, amount decimal.Decimal) (*chainrpc.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.failFor[to]; ok {
		return nil, err
	}
	f.sends = append(f.sends, chainTransfer{From: custodyAddr, To: to, Amount: amount})
	return &chainrpc.Receipt{TxHash: fmt.Sprintf("0xout%d", len(f.sends))}, nil
}

type fakeAddrs map[string]string

func (f fakeAddrs) AddressOf(_ context.Context, userID string) (string, error) {
	return f[userID], nil
}

// fakeCampaignRepo is an in-memory store matching on the query fields the
// service actually uses.
type fakeCampaignRepo struct {
	rows map[string]*campaign.Campaign
}

func (f *fakeCampaignRepo) WithTrx(*gorm.DB) repository.Repository[campaign.Campaign] { return f }

func (f *fakeCampaignRepo) Find(_ context.Context, q *campaign.Campaign, _ ...option.QueryOption) ([]*campaign.Campaign, error) {
	var out []*campaign.Campaign
	for _, c := range f.rows {
		if q != nil {
			if q.CampaignID != "" && c.CampaignID != q.CampaignID {
				continue
			}
			if q.State != "" && c.State != q.State {
				continue
			}
			if q.SellerID != "" && c.SellerID != q.SellerID {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CampaignID < out[j].CampaignID })
	return out, nil
}

func (f *fakeCampaignRepo) FindOne(ctx context.Context, q *campaign.Campaign, opts ...option.QueryOption) (*campaign.Campaign, error) {
	rows, err := f.Find(ctx, q, opts...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakeCampaignRepo) Create(_ context.Context, c *campaign.Campaign) error {
	cp := *c
	f.rows[c.CampaignID] = &cp
	return nil
}

func (f *fakeCampaignRepo) Update(_ context.Context, id string, resource any) error {
	row, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fields, ok := resource.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected update payload %T", resource)
	}
	for k, v := range fields {
		switch k {
		case "state":
			row.State = v.(campaign.CampaignState)
		case "current_amount":
			row.CurrentAmount = asInt64(v)
		case "payout_tx_hash":
			row.PayoutTxHash = v.(string)
		}
	}
	return nil
}

func (f *fakeCampaignRepo) BatchCreate(ctx context.Context, cs []*campaign.Campaign) error {
	for _, c := range cs {
		if err := f.Create(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeCampaignRepo) Count(ctx context.Context, q *campaign.Campaign) (int64, error) {
	rows, err := f.Find(ctx, q)
	return int64(len(rows)), err
}

type fakePledgeRepo struct {
	rows map[string]*campaign.Pledge
}

func (f *fakePledgeRepo) WithTrx(*gorm.DB) repository.Repository[campaign.Pledge] { return f }

func (f *fakePledgeRepo) Find(_ context.Context, q *campaign.Pledge, _ ...option.QueryOption) ([]*campaign.Pledge, error) {
	var out []*campaign.Pledge
	for _, p := range f.rows {
		if q != nil {
			if q.PledgeID != "" && p.PledgeID != q.PledgeID {
				continue
			}
			if q.CampaignID != "" && p.CampaignID != q.CampaignID {
				continue
			}
			if q.PledgerID != "" && p.PledgerID != q.PledgerID {
				continue
			}
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PledgeID < out[j].PledgeID })
	return out, nil
}

func (f *fakePledgeRepo) FindOne(ctx context.Context, q *campaign.Pledge, opts ...option.QueryOption) (*campaign.Pledge, error) {
	rows, err := f.Find(ctx, q, opts...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

func (f *fakePledgeRepo) Create(_ context.Context, p *campaign.Pledge) error {
	cp := *p
	f.rows[p.PledgeID] = &cp
	return nil
}

func (f *fakePledgeRepo) Update(_ context.Context, id string, resource any) error {
	row, ok := f.rows[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	fields, ok := resource.(map[string]any)
	if !ok {
		return fmt.Errorf("unexpected update payload %T", resource)
	}
	for k, v := range fields {
		switch k {
		case "state":
			row.State = v.(campaign.PledgeState)
		case "refund_tx_hash":
			row.RefundTxHash = v.(string)
		case "reason":
			row.Reason = v.(string)
		}
	}
	return nil
}

func (f *fakePledgeRepo) BatchCreate(ctx context.Context, ps []*campaign.Pledge) error {
	for _, p := range ps {
		if err := f.Create(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakePledgeRepo) Count(ctx context.Context, q *campaign.Pledge) (int64, error) {
	rows, err := f.Find(ctx, q)
	return int64(len(rows)), err
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int64:
		return n
	default:
		panic(fmt.Sprintf("unexpected amount type %T", v))
	}
}

type fixture struct {
	svc       *Service
	campaigns *fakeCampaignRepo
	pledges   *fakePledgeRepo
	chain     *fakeChain
	custody   *fakeCustody
	addrs     fakeAddrs
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	f := &fixture{
		campaigns: &fakeCampaignRepo{rows: map[string]*campaign.Campaign{}},
		pledges:   &fakePledgeRepo{rows: map[string]*campaign.Pledge{}},
		chain:     &fakeChain{balances: map[string]decimal.Decimal{}},
		custody:   &fakeCustody{failFor: map[string]error{}},
		addrs:     fakeAddrs{},
	}
	f.svc = &Service{
		db:       testutil.NewTestDB(t),
		node:     node,
		seq:      &fakeSequence{},
		chain:    f.chain,
		custody:  f.custody,
		addrs:    f.addrs,
		rate:     Rate{Version: "v1", UnitAPerUnitB: 10},
		campaign: f.campaigns,
		pledge:   f.pledges,
	}
	return f
}

func (f *fixture) campaignState(t *testing.T, id string) campaign.CampaignState {
	t.Helper()
	c, ok := f.campaigns.rows[id]
	require.True(t, ok, "campaign %s not found", id)
	return c.State
}

func (f *fixture) pledgeRow(t *testing.T, id string) *campaign.Pledge {
	t.Helper()
	p, ok := f.pledges.rows[id]
	require.True(t, ok, "pledge %s not found", id)
	return p
}
