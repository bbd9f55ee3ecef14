package settlement

import (
	"context"

	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/services/campaign"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// RefundOutcome tallies one campaign's refund pass.
type RefundOutcome struct {
	Total   int `json:"total"`
	Settled int `json:"settled"`
	Failed  int `json:"failed"`
}

// Clean reports whether every pledge reached a refunded or not-needed
// state, the condition for closing the campaign.
func (o RefundOutcome) Clean() bool {
	return o.Failed == 0
}

// refundCampaignPledges walks every open pledge of a campaign and
// attempts a custody refund, one pledge per transaction so an earlier
// refund survives a later failure. Already-settled pledges are skipped,
// which makes the pass safe to re-run.
func (s *Service) refundCampaignPledges(ctx context.Context, campaignID string, refundedState campaign.PledgeState, reason string) RefundOutcome {
	var outcome RefundOutcome

	pledges, err := s.pledge.Find(ctx, &campaign.Pledge{CampaignID: campaignID})
	if err != nil {
		zap.L().Error("failed to list pledges for refund", zap.String("campaign_id", campaignID), zap.Error(err))
		outcome.Failed++
		return outcome
	}

	for i := range pledges {
		if !pledges[i].State.Refundable() {
			continue
		}
		outcome.Total++

		state, err := s.refundOne(ctx, pledges[i].PledgeID, refundedState, reason)
		if err != nil {
			zap.L().Error("refund attempt errored",
				zap.String("pledge_id", pledges[i].PledgeID),
				zap.Error(err),
			)
			outcome.Failed++
			continue
		}
		if state.RefundSettled() {
			outcome.Settled++
		} else {
			outcome.Failed++
		}
	}

	return outcome
}

// refundOne processes a single pledge under its row lock and records a
// terminal outcome. The returned state is what the pledge ended in.
func (s *Service) refundOne(ctx context.Context, pledgeID string, refundedState campaign.PledgeState, reason string) (campaign.PledgeState, error) {
	var final campaign.PledgeState

	err := s.db.Transaction(func(tx *gorm.DB) error {
		p, err := s.pledge.WithTrx(tx).FindOne(ctx, &campaign.Pledge{PledgeID: pledgeID}, option.WithLockingUpdate())
		if err != nil {
			return err
		}
		if p == nil || !p.State.Refundable() {
			if p != nil {
				final = p.State
			}
			return nil
		}

		switch {
		case p.Amount == 0:
			if err := p.MarkRefundOutcome(campaign.PledgeRefundNotNeededZeroAmount, "", reason); err != nil {
				return err
			}

		default:
			addr, err := s.addrs.AddressOf(ctx, p.PledgerID)
			if err != nil {
				return err
			}
			if addr == "" {
				if err := p.MarkRefundOutcome(campaign.PledgeRefundFailedNoAddress, "", "no ledger address bound for pledger"); err != nil {
					return err
				}
				break
			}

			receipt, sendErr := s.custody.Send(ctx, addr, p.ChainAmount)
			if sendErr != nil {
				zap.L().Warn("custody refund transfer failed",
					zap.String("pledge_id", p.PledgeID),
					zap.String("address", addr),
					zap.Error(sendErr),
				)
				if err := p.MarkRefundOutcome(campaign.PledgeRefundFailedError, "", sendErr.Error()); err != nil {
					return err
				}
				break
			}
			if err := p.MarkRefundOutcome(refundedState, receipt.TxHash, reason); err != nil {
				return err
			}
		}

		final = p.State
		return s.pledge.WithTrx(tx).Update(ctx, p.PledgeID, map[string]any{
			"state":          p.State,
			"refund_tx_hash": p.RefundTxHash,
			"reason":         p.Reason,
		})
	})

	return final, err
}
