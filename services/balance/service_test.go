package balance

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/pkg/repository"
	"cloudfund-settlement/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testAddr = "0x1234567890abcdef1234567890abcdef12345678"

type fakeChain struct {
	balances map[string]decimal.Decimal
	err      error
}

func (f *fakeChain) BalanceOf(_ context.Context, address string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	return f.balances[address], nil
}

func (f *fakeChain) Transfer(context.Context, string, string, decimal.Decimal) (*chainrpc.Receipt, error) {
	return nil, errors.New("not used")
}

func newTestService(t *testing.T) (*Service, *fakeChain) {
	t.Helper()

	db := testutil.NewTestDB(t, &AddressBinding{})
	chain := &fakeChain{balances: map[string]decimal.Decimal{}}
	svc := &Service{
		db:      db,
		chain:   chain,
		binding: repository.ProvideStore[AddressBinding](db),
	}
	return svc, chain
}

func TestBindSeedsMirrorFromNode(t *testing.T) {
	svc, chain := newTestService(t)
	chain.balances[testAddr] = decimal.RequireFromString("2.5")

	b, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: testAddr})
	require.NoError(t, err)
	require.Equal(t, testAddr, b.Address)
	require.True(t, b.Balance.Equal(decimal.RequireFromString("2.5")))

	got, err := svc.Get(t.Context(), "user-1")
	require.NoError(t, err)
	require.Equal(t, testAddr, got.Address)
}

func TestBindRejectsMalformedAddress(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: "nope"})
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusValidationFailed, base.Status())
}

func TestBindReplacesExistingAddress(t *testing.T) {
	svc, chain := newTestService(t)
	other := "0xffffffffffffffffffffffffffffffffffffffff"
	chain.balances[testAddr] = decimal.NewFromInt(1)
	chain.balances[other] = decimal.NewFromInt(9)

	_, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: testAddr})
	require.NoError(t, err)

	b, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: other})
	require.NoError(t, err)
	require.Equal(t, other, b.Address)
	require.True(t, b.Balance.Equal(decimal.NewFromInt(9)))
}

func TestAddressOfUnboundUserIsEmpty(t *testing.T) {
	svc, _ := newTestService(t)

	addr, err := svc.AddressOf(t.Context(), "nobody")
	require.NoError(t, err)
	require.Empty(t, addr)
}

func TestRefreshUpdatesMirror(t *testing.T) {
	svc, chain := newTestService(t)
	chain.balances[testAddr] = decimal.NewFromInt(1)

	_, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: testAddr})
	require.NoError(t, err)

	chain.balances[testAddr] = decimal.RequireFromString("0.25")
	b, err := svc.Refresh(t.Context(), "user-1")
	require.NoError(t, err)
	require.True(t, b.Balance.Equal(decimal.RequireFromString("0.25")))
}

func TestRefreshUnknownUser(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Refresh(t.Context(), "nobody")
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusNotFound, base.Status())
}

func TestRefreshNodeFailure(t *testing.T) {
	svc, chain := newTestService(t)
	chain.balances[testAddr] = decimal.NewFromInt(1)

	_, err := svc.Bind(t.Context(), &BindRequest{UserID: "user-1", Address: testAddr})
	require.NoError(t, err)

	chain.err = errors.New("connection refused")
	_, err = svc.Refresh(t.Context(), "user-1")
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusBadGateway, base.Status())
}
