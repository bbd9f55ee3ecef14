package campaign

import (
	"context"
	"strings"
	"time"

	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/db/pagination"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/pkg/repository"
	"cloudfund-settlement/pkg/sequence"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db   *gorm.DB
	node *snowflake.Node
	seq  sequence.Generator

	campaign repository.Repository[Campaign]
	pledge   repository.Repository[Pledge]
}

type ServiceParams struct {
	fx.In
	DB   *gorm.DB
	Node *snowflake.Node
	Seq  sequence.Generator
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:   p.DB,
		node: p.Node,
		seq:  p.Seq,

		campaign: repository.ProvideStore[Campaign](p.DB),
		pledge:   repository.ProvideStore[Pledge](p.DB),
	}
}

type RegisterRequest struct {
	SellerID     string    `json:"seller_id" binding:"required"`
	Name         string    `json:"name" binding:"required"`
	Description  string    `json:"description"`
	ImageURL     string    `json:"image_url"`
	TargetAmount int64     `json:"target_amount" binding:"required"`
	Deadline     time.Time `json:"deadline" binding:"required"`
}

// Register creates a new campaign in FUNDING state.
func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*Campaign, error) {
	if req == nil || req.SellerID == "" || strings.TrimSpace(req.Name) == "" {
		return nil, errutil.BadRequest("seller_id and name are required", nil)
	}
	if req.TargetAmount <= 0 {
		return nil, errutil.ValidationFailed("target_amount must be positive", nil)
	}
	if !req.Deadline.After(time.Now()) {
		return nil, errutil.ValidationFailed("deadline must be in the future", nil)
	}

	code, err := s.seq.NextCampaignCode(ctx)
	if err != nil {
		zap.L().Error("failed to allocate campaign code", zap.Error(err))
		return nil, errutil.Internal("failed to allocate campaign code", err)
	}

	c := &Campaign{
		CampaignID:   s.node.Generate().String(),
		Code:         code,
		SellerID:     req.SellerID,
		Name:         strings.TrimSpace(req.Name),
		Description:  req.Description,
		ImageURL:     req.ImageURL,
		TargetAmount: req.TargetAmount,
		Deadline:     req.Deadline.UTC(),
		State:        StateFunding,
	}

	if err := s.campaign.Create(ctx, c); err != nil {
		zap.L().Error("failed to create campaign", zap.Error(err))
		return nil, errutil.Internal("failed to create campaign", err)
	}

	return c, nil
}

type Detail struct {
	Campaign
	Pledges []*Pledge `json:"pledges"`
}

// Get returns a campaign together with all of its pledges, newest first.
func (s *Service) Get(ctx context.Context, campaignID string) (*Detail, error) {
	if campaignID == "" {
		return nil, errutil.BadRequest("campaign_id is required", nil)
	}

	c, err := s.campaign.FindOne(ctx, &Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch campaign", err)
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}

	pledges, err := s.pledge.Find(ctx, &Pledge{CampaignID: campaignID}, option.WithSortBy(option.QuerySortBy{
		SortBy:  "created_at",
		OrderBy: "desc",
		Allow:   map[string]bool{"created_at": true},
	}))
	if err != nil {
		return nil, errutil.Internal("failed to fetch pledges", err)
	}

	return &Detail{Campaign: *c, Pledges: pledges}, nil
}

type ListRequest struct {
	pagination.Pagination
	SellerID string `form:"seller_id"`
	State    string `form:"state"`
}

type ListResponse struct {
	Campaigns []*Campaign          `json:"campaigns"`
	PageInfo  *pagination.PageInfo `json:"page_info"`
}

// List returns a page of campaigns, newest first, optionally filtered by
// seller and state. Campaign IDs are snowflakes, so paging on the ID keeps
// the cursor stable under concurrent inserts.
func (s *Service) List(ctx context.Context, req *ListRequest) (*ListResponse, error) {
	if req == nil {
		req = &ListRequest{}
	}

	filter := &Campaign{
		SellerID: req.SellerID,
		State:    CampaignState(req.State),
	}

	limit := req.Bound()
	opts := []option.QueryOption{
		option.WithSortBy(option.QuerySortBy{
			SortBy:  "campaign_id",
			OrderBy: "desc",
			Allow:   map[string]bool{"campaign_id": true},
		}),
		option.WithLimit(limit + 1),
	}

	if req.Cursor != "" {
		cursor, err := pagination.DecodeCursor(req.Cursor)
		if err != nil {
			return nil, errutil.BadRequest("malformed cursor", err)
		}
		opts = append(opts, option.ApplyOperator(option.Condition{
			Field:    "campaign_id",
			Operator: option.LT,
			Value:    cursor.ID,
		}))
	}

	campaigns, err := s.campaign.Find(ctx, filter, opts...)
	if err != nil {
		return nil, errutil.Internal("failed to list campaigns", err)
	}

	pageInfo := pagination.BuildCursorPageInfo(campaigns, limit, func(c *Campaign) string {
		cursor, _ := pagination.EncodeCursor(pagination.Cursor{ID: c.CampaignID})
		return cursor
	})
	if len(campaigns) > limit {
		campaigns = campaigns[:limit]
	}

	return &ListResponse{Campaigns: campaigns, PageInfo: pageInfo}, nil
}

// FindForUpdate loads a campaign inside tx under a row lock. Returns
// nil, nil when the campaign does not exist.
func (s *Service) FindForUpdate(ctx context.Context, tx *gorm.DB, campaignID string) (*Campaign, error) {
	return s.campaign.WithTrx(tx).FindOne(ctx, &Campaign{CampaignID: campaignID}, option.WithLockingUpdate())
}
