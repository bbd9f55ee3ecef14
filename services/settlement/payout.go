package settlement

import (
	"context"

	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/campaign"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// payoutTotal sums the ledger-unit value held in custody for a
// campaign. Only open pledges count; refunded ones have already left.
func (s *Service) payoutTotal(ctx context.Context, tx *gorm.DB, campaignID string) (decimal.Decimal, error) {
	repo := s.pledge
	if tx != nil {
		repo = s.pledge.WithTrx(tx)
	}
	pledges, err := repo.Find(ctx, &campaign.Pledge{CampaignID: campaignID})
	if err != nil {
		return decimal.Zero, err
	}

	total := decimal.Zero
	for i := range pledges {
		if pledges[i].State == campaign.PledgeCompleted {
			total = total.Add(pledges[i].ChainAmount)
		}
	}
	return total, nil
}

// attemptPayout pays the seller from custody and marks the campaign
// SUCCESS_PAID. On any failure the campaign stays SUCCESS_PENDING_PAYOUT
// for an operator retry. Returns true when the payout landed.
func (s *Service) attemptPayout(ctx context.Context, c *campaign.Campaign) bool {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		found, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: c.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if found == nil || found.State != campaign.StateSuccessPendingPayout {
			return errutil.Conflict("campaign is not awaiting payout", nil)
		}

		sellerAddr, err := s.addrs.AddressOf(ctx, found.SellerID)
		if err != nil {
			return err
		}
		if sellerAddr == "" {
			return errutil.UnprocessableEntity("seller has no ledger address bound", nil)
		}

		total, err := s.payoutTotal(ctx, tx, found.CampaignID)
		if err != nil {
			return err
		}

		if total.IsPositive() {
			receipt, err := s.custody.Send(ctx, sellerAddr, total)
			if err != nil {
				return transferError("payout transfer failed", err)
			}
			found.PayoutTxHash = receipt.TxHash
		}

		if err := found.Transition(campaign.StateSuccessPaid); err != nil {
			return err
		}
		if err := s.campaign.WithTrx(tx).Update(ctx, found.CampaignID, map[string]any{
			"state":          found.State,
			"payout_tx_hash": found.PayoutTxHash,
		}); err != nil {
			return err
		}
		*c = *found
		return nil
	})
	if err != nil {
		zap.L().Warn("payout attempt failed",
			zap.String("campaign_id", c.CampaignID),
			zap.Error(err),
		)
		return false
	}

	zap.L().Info("campaign paid out",
		zap.String("campaign_id", c.CampaignID),
		zap.String("tx_hash", c.PayoutTxHash),
	)
	return true
}

// RetryPayout re-attempts the seller payout for a campaign stuck in
// SUCCESS_PENDING_PAYOUT. Operator-driven; the sweeper never retries
// payouts on its own.
func (s *Service) RetryPayout(ctx context.Context, campaignID string) (*campaign.Campaign, error) {
	if campaignID == "" {
		return nil, errutil.BadRequest("campaign_id is required", nil)
	}

	c, err := s.campaign.FindOne(ctx, &campaign.Campaign{CampaignID: campaignID})
	if err != nil {
		return nil, errutil.Internal("failed to fetch campaign", err)
	}
	if c == nil {
		return nil, errutil.NotFound("campaign not found", nil)
	}
	if c.State != campaign.StateSuccessPendingPayout {
		return nil, errutil.Conflict("campaign is not awaiting payout", nil)
	}

	if !s.attemptPayout(ctx, c) {
		return nil, errutil.BadGateway("payout attempt failed; campaign remains pending", nil)
	}
	return c, nil
}
