package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CreditEntry is one row of the append-only credit audit trail. Debits are
// stored with a negative amount, recharges with a positive one; the sum of a
// user's entries must equal the live balance at every observation point.
type CreditEntry struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"index" json:"user_id"`
	User        User            `json:"-"`
	Amount      decimal.Decimal `gorm:"type:numeric(10,2)" json:"amount"`
	Description string          `gorm:"type:text" json:"description"`
	CreatedAt   time.Time       `json:"created_at"`
}

// RechargeRequest tops up a user's balance
type RechargeRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
}
