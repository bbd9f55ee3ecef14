package settlement

import (
	"context"
	"errors"
	"time"

	"cloudfund-settlement/pkg/chainrpc"
	"cloudfund-settlement/pkg/db/option"
	"cloudfund-settlement/pkg/errutil"
	"cloudfund-settlement/services/campaign"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PledgeRequest struct {
	CampaignID string `json:"campaign_id" binding:"required"`
	PledgerID  string `json:"pledger_id" binding:"required"`
	Amount     int64  `json:"amount"`
}

// Pledge commits value from a pledger to a campaign. The ledger transfer
// runs inside the campaign's row lock so a rolled-back pledge never
// leaves a funded row behind. A pledge that lifts current_amount to the
// target closes funding in the same transaction and the seller payout
// is attempted right after commit.
func (s *Service) Pledge(ctx context.Context, req *PledgeRequest) (*campaign.Pledge, error) {
	if req == nil || req.CampaignID == "" || req.PledgerID == "" {
		return nil, errutil.BadRequest("campaign_id and pledger_id are required", nil)
	}
	if req.Amount <= 0 {
		return nil, errutil.ValidationFailed("amount must be positive", nil)
	}

	pledgerAddr, err := s.addrs.AddressOf(ctx, req.PledgerID)
	if err != nil {
		return nil, errutil.Internal("failed to resolve pledger address", err)
	}
	if pledgerAddr == "" {
		return nil, errutil.UnprocessableEntity("pledger has no ledger address bound", nil)
	}

	chainAmount := s.rate.ToChain(req.Amount)

	balance, err := s.chain.BalanceOf(ctx, pledgerAddr)
	if err != nil {
		return nil, errutil.BadGateway("failed to read pledger balance", err)
	}
	if balance.LessThan(chainAmount) {
		return nil, errutil.UnprocessableEntity("pledger balance is below the pledge amount", nil)
	}

	code, err := s.seq.NextPledgeCode(ctx, req.CampaignID)
	if err != nil {
		return nil, errutil.Internal("failed to allocate pledge code", err)
	}

	p := &campaign.Pledge{
		PledgeID:    s.node.Generate().String(),
		Code:        code,
		CampaignID:  req.CampaignID,
		PledgerID:   req.PledgerID,
		Amount:      req.Amount,
		ChainAmount: chainAmount,
		RateVersion: s.rate.Version,
		State:       campaign.PledgeCompleted,
	}

	var funded *campaign.Campaign
	err = s.db.Transaction(func(tx *gorm.DB) error {
		c, err := s.campaign.WithTrx(tx).FindOne(ctx, &campaign.Campaign{CampaignID: req.CampaignID}, option.WithLockingUpdate())
		if err != nil {
			return errutil.Internal("failed to fetch campaign", err)
		}
		if c == nil {
			return errutil.NotFound("campaign not found", nil)
		}

		if c.State == campaign.StateFunding && c.Expired(time.Now()) {
			if err := s.flipExpired(ctx, tx, c); err != nil {
				return err
			}
			return errutil.Conflict("campaign funding period has ended", nil)
		}
		if c.State != campaign.StateFunding {
			return errutil.Conflict("campaign is not accepting pledges", nil)
		}

		receipt, err := s.chain.Transfer(ctx, pledgerAddr, s.custody.Address(), chainAmount)
		if err != nil {
			return transferError("pledge transfer failed", err)
		}
		p.TxHash = receipt.TxHash

		if err := s.pledge.WithTrx(tx).Create(ctx, p); err != nil {
			return errutil.Internal("failed to create pledge", err)
		}

		c.CurrentAmount += req.Amount
		values := map[string]any{"current_amount": c.CurrentAmount}
		if c.GoalReached() {
			if err := c.Transition(campaign.StateSuccessPendingPayout); err != nil {
				return errutil.Internal("failed to close funded campaign", err)
			}
			values["state"] = c.State
			funded = c
		}
		if err := s.campaign.WithTrx(tx).Update(ctx, c.CampaignID, values); err != nil {
			return errutil.Internal("failed to update campaign amount", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Info("pledge accepted",
		zap.String("pledge_id", p.PledgeID),
		zap.String("campaign_id", p.CampaignID),
		zap.Int64("amount", p.Amount),
	)

	if funded != nil {
		zap.L().Info("campaign reached its target",
			zap.String("campaign_id", funded.CampaignID),
			zap.Int64("current_amount", funded.CurrentAmount),
		)
		// On payout failure the campaign stays SUCCESS_PENDING_PAYOUT
		// for an operator retry; the pledge itself has committed.
		s.attemptPayout(ctx, funded)
	}
	return p, nil
}

// flipExpired moves an expired FUNDING campaign to its post-deadline
// state without running settlement; the sweeper or an operator finishes
// the job.
func (s *Service) flipExpired(ctx context.Context, tx *gorm.DB, c *campaign.Campaign) error {
	next := campaign.StateFailedRefundInProgress
	if c.GoalReached() {
		next = campaign.StateSuccessPendingPayout
	}
	if err := c.Transition(next); err != nil {
		return errutil.Internal("failed to close expired campaign", err)
	}
	if err := s.campaign.WithTrx(tx).Update(ctx, c.CampaignID, map[string]any{
		"state": c.State,
	}); err != nil {
		return errutil.Internal("failed to persist campaign state", err)
	}
	zap.L().Info("campaign expired on read",
		zap.String("campaign_id", c.CampaignID),
		zap.String("state", string(c.State)),
	)
	return nil
}

// transferError maps node failures onto API errors. Account-level
// problems are the caller's to fix; everything else is the node's.
func transferError(msg string, err error) error {
	switch {
	case errors.Is(err, chainrpc.ErrInsufficientFunds),
		errors.Is(err, chainrpc.ErrSenderUnknown),
		errors.Is(err, chainrpc.ErrSenderLocked),
		errors.Is(err, chainrpc.ErrInvalidAddress),
		errors.Is(err, chainrpc.ErrInvalidAmount):
		return errutil.UnprocessableEntity(msg, err)
	default:
		return errutil.BadGateway(msg, err)
	}
}
