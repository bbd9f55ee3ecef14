package campaign

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type CampaignState string

const (
	StateFunding                     CampaignState = "FUNDING"
	StateSuccessPendingPayout        CampaignState = "SUCCESS_PENDING_PAYOUT"
	StateSuccessPaid                 CampaignState = "SUCCESS_PAID"
	StateFailedRefundInProgress      CampaignState = "FAILED_REFUND_IN_PROGRESS"
	StateFailedRefunded              CampaignState = "FAILED_REFUNDED"
	StateCanceledRefundInProgress    CampaignState = "CANCELED_REFUND_IN_PROGRESS"
	StateCanceled                    CampaignState = "CANCELED"
	StateCanceledPartialRefundFailed CampaignState = "CANCELED_PARTIAL_REFUND_FAILED"
)

// campaignTransitions is the exhaustive transition table. States absent
// from the map are terminal.
var campaignTransitions = map[CampaignState][]CampaignState{
	StateFunding: {
		StateSuccessPendingPayout,
		StateSuccessPaid,
		StateFailedRefundInProgress,
		StateCanceledRefundInProgress,
	},
	// A pending payout is only resolved by an operator retry.
	StateSuccessPendingPayout: {
		StateSuccessPaid,
	},
	StateFailedRefundInProgress: {
		StateFailedRefunded,
	},
	StateCanceledRefundInProgress: {
		StateCanceled,
		StateCanceledPartialRefundFailed,
	},
}

// CanTransition reports whether moving from s to next is a legal step.
func (s CampaignState) CanTransition(next CampaignState) bool {
	for _, allowed := range campaignTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible from s.
func (s CampaignState) Terminal() bool {
	return len(campaignTransitions[s]) == 0
}

// Campaign is a funding goal with a deadline. current_amount only grows
// while the campaign is FUNDING; cancellation resets it to zero atomically
// with the state change. Rows are never deleted.
type Campaign struct {
	CampaignID    string        `gorm:"column:campaign_id;primaryKey;type:char(26)" json:"campaign_id"`
	Code          string        `gorm:"column:code;uniqueIndex" json:"code"`
	SellerID      string        `gorm:"column:seller_id;index;not null" json:"seller_id"`
	Name          string        `gorm:"column:name;type:varchar(255);not null" json:"name"`
	Description   string        `gorm:"column:description;type:text" json:"description"`
	ImageURL      string        `gorm:"column:image_url" json:"image_url,omitempty"`
	TargetAmount  int64         `gorm:"column:target_amount;not null" json:"target_amount"`
	CurrentAmount int64         `gorm:"column:current_amount;not null;default:0" json:"current_amount"`
	Deadline      time.Time     `gorm:"column:deadline;index;not null" json:"deadline"`
	State         CampaignState `gorm:"column:state;type:varchar(40);not null;default:'FUNDING'" json:"state"`
	PayoutTxHash  string        `gorm:"column:payout_tx_hash" json:"payout_tx_hash,omitempty"`
	CreatedAt     time.Time     `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time     `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Campaign) TableName() string {
	return "campaigns"
}

// Transition moves the campaign to next, enforcing the transition table.
func (c *Campaign) Transition(next CampaignState) error {
	if !c.State.CanTransition(next) {
		return fmt.Errorf("illegal campaign transition %s -> %s", c.State, next)
	}
	c.State = next
	return nil
}

// GoalReached applies the success predicate; hitting the target exactly
// counts as success.
func (c *Campaign) GoalReached() bool {
	return c.CurrentAmount >= c.TargetAmount
}

// Expired reports whether the deadline has passed at the given instant.
func (c *Campaign) Expired(now time.Time) bool {
	return now.After(c.Deadline)
}

type PledgeState string

const (
	PledgeCompleted                 PledgeState = "COMPLETED"
	PledgeRefundFailedNoAddress     PledgeState = "REFUND_FAILED_NO_ADDRESS"
	PledgeRefundNotNeededZeroAmount PledgeState = "REFUND_NOT_NEEDED_ZERO_AMOUNT"
	PledgeRefundedBySellerCancel    PledgeState = "REFUNDED_BY_SELLER_CANCEL"
	PledgeRefundFailedError         PledgeState = "REFUND_FAILED_ERROR"
	PledgeRefundedFundingFailure    PledgeState = "REFUNDED_DUE_TO_FUNDING_FAILURE"
)

// Refundable reports whether a refund attempt may still process this
// pledge. Every refund outcome is terminal.
func (s PledgeState) Refundable() bool {
	return s == PledgeCompleted
}

// RefundSettled reports whether the pledge reached a refunded or
// not-needed outcome, the condition for a clean campaign close.
func (s PledgeState) RefundSettled() bool {
	switch s {
	case PledgeRefundNotNeededZeroAmount, PledgeRefundedBySellerCancel, PledgeRefundedFundingFailure:
		return true
	default:
		return false
	}
}

// Pledge is one pledger's commitment of value to a campaign. Amount is in
// the internal accounting unit; ChainAmount is the converted ledger-unit
// value fixed at pledge time under RateVersion.
type Pledge struct {
	PledgeID     string          `gorm:"column:pledge_id;primaryKey;type:char(26)" json:"pledge_id"`
	Code         string          `gorm:"column:code" json:"code"`
	CampaignID   string          `gorm:"column:campaign_id;index;not null" json:"campaign_id"`
	PledgerID    string          `gorm:"column:pledger_id;index;not null" json:"pledger_id"`
	Amount       int64           `gorm:"column:amount;not null" json:"amount"`
	ChainAmount  decimal.Decimal `gorm:"column:chain_amount;type:numeric(32,18);not null" json:"chain_amount"`
	RateVersion  string          `gorm:"column:rate_version" json:"rate_version"`
	TxHash       string          `gorm:"column:tx_hash" json:"tx_hash"`
	RefundTxHash string          `gorm:"column:refund_tx_hash" json:"refund_tx_hash,omitempty"`
	Reason       string          `gorm:"column:reason;type:text" json:"reason,omitempty"`
	State        PledgeState     `gorm:"column:state;type:varchar(40);not null;default:'COMPLETED'" json:"state"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (Pledge) TableName() string {
	return "pledges"
}

// MarkRefundOutcome records the terminal result of a refund attempt.
func (p *Pledge) MarkRefundOutcome(state PledgeState, refundTxHash, reason string) error {
	if !p.State.Refundable() {
		return fmt.Errorf("pledge %s already settled in state %s", p.PledgeID, p.State)
	}
	if state.Refundable() {
		return fmt.Errorf("state %s is not a refund outcome", state)
	}
	p.State = state
	p.RefundTxHash = refundTxHash
	p.Reason = reason
	return nil
}
