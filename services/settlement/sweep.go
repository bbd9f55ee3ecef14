package settlement

import (
	"context"
	"time"

	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/campaign"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SweepReport summarizes one sweep pass.
type SweepReport struct {
	Scanned        int `json:"scanned"`
	Paid           int `json:"paid"`
	PayoutPending  int `json:"payout_pending"`
	Refunded       int `json:"refunded"`
	RefundsPending int `json:"refunds_pending"`
}

// Sweep settles every campaign whose deadline has passed: goal reached
// pays the seller, goal missed refunds the pledgers. It also resumes
// campaigns stuck mid-refund from an earlier pass. Each campaign is
// settled independently so one failure never blocks the rest.
func (s *Service) Sweep(ctx context.Context) (*SweepReport, error) {
	report := &SweepReport{}

	expired, err := s.campaign.Find(ctx, &campaign.Campaign{State: campaign.StateFunding},
		option.ApplyOperator(option.Condition{Field: "deadline", Operator: option.LT, Value: time.Now()}),
	)
	if err != nil {
		return nil, errutil.Internal("failed to list expired campaigns", err)
	}

	resumable, err := s.campaign.Find(ctx, &campaign.Campaign{State: campaign.StateFailedRefundInProgress})
	if err != nil {
		return nil, errutil.Internal("failed to list unfinished refunds", err)
	}

	for i := range expired {
		report.Scanned++
		s.settleExpired(ctx, report, expired[i].CampaignID)
	}
	for i := range resumable {
		report.Scanned++
		s.resumeFailedRefunds(ctx, report, resumable[i].CampaignID)
	}

	zap.L().Info("sweep pass finished",
		zap.Int("scanned", report.Scanned),
		zap.Int("paid", report.Paid),
		zap.Int("payout_pending", report.PayoutPending),
		zap.Int("refunded", report.Refunded),
		zap.Int("refunds_pending", report.RefundsPending),
	)
	return report, nil
}

// settleExpired closes one expired FUNDING campaign. The decisive state
// flip happens under the row lock; the money movement follows it so a
// concurrent pledge or cancel can never race the settlement.
func (s *Service) settleExpired(ctx context.Context, report *SweepReport, campaignID string) {
	var c *campaign.Campaign

	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: campaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if found == nil || found.State != campaign.StateFunding || !found.Expired(time.Now()) {
			return nil
		}

		next := campaign.StateFailedRefundInProgress
		if found.GoalReached() {
			next = campaign.StateSuccessPendingPayout
		}
		if err := found.Transition(next); err != nil {
			return err
		}
		if err := s.campaign.WithTrx(tx).Update(ctx, found.CampaignID, map[string]any{
			"state": found.State,
		}); err != nil {
			return err
		}
		c = found
		return nil
	})
	if err != nil {
		zap.L().Error("failed to flip expired campaign", zap.String("campaign_id", campaignID), zap.Error(err))
		return
	}
	if c == nil {
		// Someone else settled it between the scan and the lock.
		return
	}

	switch c.State {
	case campaign.StateSuccessPendingPayout:
		if s.attemptPayout(ctx, c) {
			report.Paid++
		} else {
			report.PayoutPending++
		}

	case campaign.StateFailedRefundInProgress:
		outcome := s.refundCampaignPledges(ctx, c.CampaignID, campaign.PledgeRefundedFundingFailure, "campaign failed to reach its target")
		if s.closeFailed(ctx, c, outcome) {
			report.Refunded++
		} else {
			report.RefundsPending++
		}
	}
}

// resumeFailedRefunds retries a campaign left in FAILED_REFUND_IN_PROGRESS.
// The refund pass skips settled pledges, so only the leftovers move.
func (s *Service) resumeFailedRefunds(ctx context.Context, report *SweepReport, campaignID string) {
	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{CampaignID: campaignID})
	if err != nil || c == nil || c.State != campaign.StateFailedRefundInProgress {
		return
	}

	outcome := s.refundCampaignPledges(ctx, c.CampaignID, campaign.PledgeRefundedFundingFailure, "campaign failed to reach its target")
	if s.closeFailed(ctx, c, outcome) {
		report.Refunded++
	} else {
		report.RefundsPending++
	}
}

// closeFailed finishes a failed campaign once every pledge has settled.
// Returns true when the campaign reached FAILED_REFUNDED.
func (s *Service) closeFailed(ctx context.Context, c *campaign.Campaign, outcome RefundOutcome) bool {
	if !outcome.Clean() {
		return false
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: c.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if found == nil || found.State != campaign.StateFailedRefundInProgress {
			return nil
		}

		// A refund pass can leave terminal failures behind; only a pass
		// that settled everything may close the campaign.
		open, err := s.openRefunds(ctx, tx, found.CampaignID)
		if err != nil {
			return err
		}
		if open {
			return nil
		}

		if err := found.Transition(campaign.StateFailedRefunded); err != nil {
			return err
		}
		if err := s.campaign.WithTrx(tx).Update(ctx, found.CampaignID, map[string]any{
			"state": found.State,
		}); err != nil {
			return err
		}
		*c = *found
		return nil
	})
	if err != nil {
		zap.L().Error("failed to close refunded campaign", zap.String("campaign_id", c.CampaignID), zap.Error(err))
		return false
	}
	return c.State == campaign.StateFailedRefunded
}

// openRefunds reports whether any pledge of the campaign still needs a
// refund attempt or ended in a failed refund.
func (s *Service) openRefunds(ctx context.Context, tx *gorm.DB, campaignID string) (bool, error) {
	pledges, err := s.pledge.WithTrx(tx).Find(ctx, &campaign.Pledge{CampaignID: campaignID})
	if err != nil {
		return false, err
	}
	for i := range pledges {
		if !pledges[i].State.RefundSettled() {
			return true, nil
		}
	}
	return false, nil
}
