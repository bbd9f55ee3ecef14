package campaign

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cloudfund-settlement/pkg/db/pagination"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/pkg/repository"
	"cloudfund-settlement/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

type fakeSequence struct {
	campaignErr error
	n           int
}

func (f *fakeSequence) NextCampaignCode(ctx context.Context) (string, error) {
	if f.campaignErr != nil {
		return "", f.campaignErr
	}
	f.n++
	return fmt.Sprintf("CMP-%03d", f.n), nil
}

func (f *fakeSequence) NextPledgeCode(ctx context.Context, campaignID string) (string, error) {
	f.n++
	return fmt.Sprintf("PLG-%03d", f.n), nil
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Campaign{}, &Pledge{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	return &Service{
		db:       db,
		node:     node,
		seq:      &fakeSequence{},
		campaign: repository.ProvideStore[Campaign](db),
		pledge:   repository.ProvideStore[Pledge](db),
	}
}

func TestRegisterCreatesFundingCampaign(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Register(t.Context(), &RegisterRequest{
		SellerID:     "seller-1",
		Name:         "  Solar Lamp  ",
		TargetAmount: 50000,
		Deadline:     time.Now().Add(30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, StateFunding, created.State)
	require.Equal(t, "Solar Lamp", created.Name)
	require.NotEmpty(t, created.CampaignID)
	require.NotEmpty(t, created.Code)
	require.Zero(t, created.CurrentAmount)
}

func TestRegisterValidation(t *testing.T) {
	svc := newTestService(t)
	future := time.Now().Add(time.Hour)

	cases := []struct {
		name string
		req  *RegisterRequest
		code errutil.CoreStatus
	}{
		{"nil request", nil, errutil.StatusBadRequest},
		{"missing seller", &RegisterRequest{Name: "x", TargetAmount: 1, Deadline: future}, errutil.StatusBadRequest},
		{"blank name", &RegisterRequest{SellerID: "s", Name: "   ", TargetAmount: 1, Deadline: future}, errutil.StatusBadRequest},
		{"zero target", &RegisterRequest{SellerID: "s", Name: "x", TargetAmount: 0, Deadline: future}, errutil.StatusValidationFailed},
		{"negative target", &RegisterRequest{SellerID: "s", Name: "x", TargetAmount: -5, Deadline: future}, errutil.StatusValidationFailed},
		{"past deadline", &RegisterRequest{SellerID: "s", Name: "x", TargetAmount: 1, Deadline: time.Now().Add(-time.Hour)}, errutil.StatusValidationFailed},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Register(t.Context(), tc.req)
			require.Error(t, err)

			var base errutil.BaseError
			require.True(t, errors.As(err, &base))
			require.Equal(t, tc.code, base.Status())
		})
	}
}

func TestGetReturnsPledges(t *testing.T) {
	svc := newTestService(t)

	created, err := svc.Register(t.Context(), &RegisterRequest{
		SellerID:     "seller-1",
		Name:         "Boardgame",
		TargetAmount: 1000,
		Deadline:     time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		testutil.Seed(t, svc.db, &Pledge{
			PledgeID:   fmt.Sprintf("p-%d", i),
			CampaignID: created.CampaignID,
			PledgerID:  fmt.Sprintf("buyer-%d", i),
			Amount:     100,
			State:      PledgeCompleted,
		})
	}

	detail, err := svc.Get(t.Context(), created.CampaignID)
	require.NoError(t, err)
	require.Equal(t, created.CampaignID, detail.CampaignID)
	require.Len(t, detail.Pledges, 3)
}

func TestGetUnknownCampaign(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Get(t.Context(), "missing")
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusNotFound, base.Status())
}

func TestListFiltersBySellerAndState(t *testing.T) {
	svc := newTestService(t)

	for i, seller := range []string{"seller-1", "seller-1", "seller-2"} {
		_, err := svc.Register(t.Context(), &RegisterRequest{
			SellerID:     seller,
			Name:         fmt.Sprintf("campaign-%d", i),
			TargetAmount: 1000,
			Deadline:     time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	all, err := svc.List(t.Context(), nil)
	require.NoError(t, err)
	require.Len(t, all.Campaigns, 3)
	require.False(t, all.PageInfo.HasMore)

	mine, err := svc.List(t.Context(), &ListRequest{SellerID: "seller-1"})
	require.NoError(t, err)
	require.Len(t, mine.Campaigns, 2)

	funding, err := svc.List(t.Context(), &ListRequest{State: string(StateFunding)})
	require.NoError(t, err)
	require.Len(t, funding.Campaigns, 3)
}

func TestListPaginatesWithCursor(t *testing.T) {
	svc := newTestService(t)

	for i := 0; i < 5; i++ {
		_, err := svc.Register(t.Context(), &RegisterRequest{
			SellerID:     "seller-1",
			Name:         fmt.Sprintf("campaign-%d", i),
			TargetAmount: 1000,
			Deadline:     time.Now().Add(time.Hour),
		})
		require.NoError(t, err)
	}

	first, err := svc.List(t.Context(), &ListRequest{Pagination: pagination.Pagination{Limit: 2}})
	require.NoError(t, err)
	require.Len(t, first.Campaigns, 2)
	require.True(t, first.PageInfo.HasMore)
	require.NotEmpty(t, first.PageInfo.NextCursor)

	second, err := svc.List(t.Context(), &ListRequest{Pagination: pagination.Pagination{
		Limit:  2,
		Cursor: first.PageInfo.NextCursor,
	}})
	require.NoError(t, err)
	require.Len(t, second.Campaigns, 2)
	require.True(t, second.PageInfo.HasMore)

	// Newest first, no overlap between pages.
	require.Less(t, second.Campaigns[0].CampaignID, first.Campaigns[1].CampaignID)

	last, err := svc.List(t.Context(), &ListRequest{Pagination: pagination.Pagination{
		Limit:  2,
		Cursor: second.PageInfo.NextCursor,
	}})
	require.NoError(t, err)
	require.Len(t, last.Campaigns, 1)
	require.False(t, last.PageInfo.HasMore)

	_, err = svc.List(t.Context(), &ListRequest{Pagination: pagination.Pagination{Cursor: "%%%"}})
	var base errutil.BaseError
	require.True(t, errors.As(err, &base))
	require.Equal(t, errutil.StatusBadRequest, base.Status())
}
