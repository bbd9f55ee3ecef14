package balance

import (
	"time"

	"github.com/shopspring/decimal"
)

// AddressBinding maps a user to their ledger address and mirrors the
// address's last observed balance. The mirror is a read-model only; the
// node remains the source of truth.
type AddressBinding struct {
	UserID      string          `gorm:"column:user_id;primaryKey" json:"user_id"`
	Address     string          `gorm:"column:address;uniqueIndex" json:"address"`
	Balance     decimal.Decimal `gorm:"column:balance;type:numeric(32,18);not null;default:0" json:"balance"`
	RefreshedAt time.Time       `gorm:"column:refreshed_at" json:"refreshed_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
}

func (AddressBinding) TableName() string {
	return "address_bindings"
}
