package settlement

import (
	"cloudfund-settlement/pkg/config"

	"github.com/shopspring/decimal"
)

// Rate converts accounting-unit amounts into ledger-unit amounts. The
// version is stamped onto every pledge so historical rows remain
// interpretable after a rate change.
type Rate struct {
	Version       string
	UnitAPerUnitB int64
}

func NewRate(cfg *config.Config) Rate {
	return Rate{
		Version:       cfg.Settlement.RateVersion,
		UnitAPerUnitB: cfg.Settlement.UnitAPerUnitB,
	}
}

// ToChain converts an accounting amount to its ledger-unit value with
// 18 fractional digits, matching the ledger's smallest denomination.
func (r Rate) ToChain(amount int64) decimal.Decimal {
	return decimal.NewFromInt(amount).DivRound(decimal.NewFromInt(r.UnitAPerUnitB), 18)
}
