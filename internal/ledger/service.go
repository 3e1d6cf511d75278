package ledger

import (
	"context"
	"errors"

	"creditchat/backend/internal/metrics"
	"creditchat/backend/internal/models"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Service owns the credit balance and its append-only audit trail. Every
// balance mutation happens inside one transaction together with its ledger
// entry, so the sum of entries always equals the live balance.
type Service struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewService creates a ledger service
func NewService(db *gorm.DB) *Service {
	return &Service{db: db, metrics: metrics.Global()}
}

// ChatCost computes the charge for one chat turn: ceil(costRate * maxTokens / 100)
// in credit units. Pure integer arithmetic so the audit trail never drifts.
func ChatCost(costRate, maxTokens int) decimal.Decimal {
	units := (int64(costRate)*int64(maxTokens) + 99) / 100
	return decimal.NewFromInt(units)
}

// Debit atomically subtracts amount from the user's balance and appends a
// negative audit entry. Fails with INSUFFICIENT_FUNDS when the balance does
// not cover the amount, leaving the balance untouched.
func (s *Service) Debit(ctx context.Context, userID uint, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	var balance decimal.Decimal

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Single guarded UPDATE: the balance check and subtraction are one
		// statement, so concurrent debits cannot interleave into a negative
		// balance.
		res := tx.Model(&models.User{}).
			Where("id = ? AND credits >= ?", userID, amount).
			UpdateColumn("credits", gorm.Expr("credits - ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var user models.User
			if err := tx.First(&user, userID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return apperrors.NewNotFoundError("User not found")
				}
				return err
			}
			return apperrors.NewInsufficientFundsError("Insufficient credits")
		}

		entry := models.CreditEntry{
			UserID:      userID,
			Amount:      amount.Neg(),
			Description: description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		balance = user.Credits
		return nil
	})
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeInsufficientFunds) {
			s.metrics.InsufficientFunds.Inc()
		}
		return decimal.Zero, err
	}

	s.metrics.DebitsTotal.Inc()
	return balance, nil
}

// Credit adds amount to the user's balance with a positive audit entry.
// Amount must be strictly positive.
func (s *Service) Credit(ctx context.Context, userID uint, amount decimal.Decimal, description string) (decimal.Decimal, error) {
	if !amount.IsPositive() {
		return decimal.Zero, apperrors.NewInvalidArgumentError("Amount must be greater than 0")
	}

	var balance decimal.Decimal
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.User{}).
			Where("id = ?", userID).
			UpdateColumn("credits", gorm.Expr("credits + ?", amount))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperrors.NewNotFoundError("User not found")
		}

		entry := models.CreditEntry{
			UserID:      userID,
			Amount:      amount,
			Description: description,
		}
		if err := tx.Create(&entry).Error; err != nil {
			return err
		}

		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		balance = user.Credits
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return balance, nil
}

// Balance returns the user's current credit balance
func (s *Service) Balance(ctx context.Context, userID uint) (decimal.Decimal, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, apperrors.NewNotFoundError("User not found")
		}
		return decimal.Zero, err
	}
	return user.Credits, nil
}

// History lists a user's ledger entries, newest first
func (s *Service) History(ctx context.Context, userID uint, limit, offset int) ([]models.CreditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []models.CreditEntry
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&entries).Error
	return entries, err
}
