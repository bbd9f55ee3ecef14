package settlement

import (
	"context"

	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/campaign"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type CancelRequest struct {
	CampaignID string `json:"-"`
	SellerID   string `json:"seller_id" binding:"required"`
	Reason     string `json:"reason"`
}

type CancelResult struct {
	Campaign *campaign.Campaign `json:"campaign"`
	Refunds  RefundOutcome      `json:"refunds"`
}

// Cancel lets the seller abort a campaign that is still funding. The
// state flip and amount reset commit first; refunds then run pledge by
// pledge, and the final state records whether every refund went through.
func (s *Service) Cancel(ctx context.Context, req *CancelRequest) (*CancelResult, error) {
	if req == nil || req.CampaignID == "" || req.SellerID == "" {
		return nil, errutil.BadRequest("campaign_id and seller_id are required", nil)
	}

	var c *campaign.Campaign
	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: req.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to fetch campaign", err)
		}
		if found == nil {
			return errutil.NotFound("campaign not found", nil)
		}
		if found.SellerID != req.SellerID {
			return errutil.Forbidden("only the campaign seller may cancel", nil)
		}
		if found.State != campaign.StateFunding {
			return errutil.Conflict("campaign is not in a cancelable state", nil)
		}

		if err := found.Transition(campaign.StateCanceledRefundInProgress); err != nil {
			return errutil.Internal("failed to cancel campaign", err)
		}
		found.CurrentAmount = 0
		if err := s.campaign.WithTrx(tx).Update(ctx, found.CampaignID, map[string]any{
			"state":          found.State,
			"current_amount": 0,
		}); err != nil {
			return errutil.Internal("failed to persist campaign state", err)
		}

		c = found
		return nil
	})
	if err != nil {
		return nil, err
	}

	reason := req.Reason
	if reason == "" {
		reason = "canceled by seller"
	}
	outcome := s.refundCampaignPledges(ctx, c.CampaignID, campaign.PledgeRefundedBySellerCancel, reason)

	if err := s.closeCanceled(ctx, c, outcome); err != nil {
		return nil, err
	}

	zap.L().Info("campaign canceled",
		zap.String("campaign_id", c.CampaignID),
		zap.String("state", string(c.State)),
		zap.Int("refunds_settled", outcome.Settled),
		zap.Int("refunds_failed", outcome.Failed),
	)
	return &CancelResult{Campaign: c, Refunds: outcome}, nil
}

func (s *Service) closeCanceled(ctx context.Context, c *campaign.Campaign, outcome RefundOutcome) error {
	next := campaign.StateCanceled
	if !outcome.Clean() {
		next = campaign.StateCanceledPartialRefundFailed
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: c.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to fetch campaign", err)
		}
		if found == nil || found.State != campaign.StateCanceledRefundInProgress {
			return errutil.Conflict("campaign left the cancellation flow", nil)
		}
		if err := found.Transition(next); err != nil {
			return errutil.Internal("failed to close canceled campaign", err)
		}
		if err := s.campaign.WithTrx(tx).Update(ctx, found.CampaignID, map[string]any{
			"state": found.State,
		}); err != nil {
			return errutil.Internal("failed to persist campaign state", err)
		}
		*c = *found
		return nil
	})
}
