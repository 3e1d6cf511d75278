package ledger

import (
	"context"
	"testing"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/testutil"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newUser(t *testing.T, db *gorm.DB, credits string) *models.User {
	t.Helper()
	user := models.User{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "s3cret-pass",
		Credits:  decimal.RequireFromString(credits),
	}
	require.NoError(t, db.Create(&user).Error)
	return &user
}

func auditSum(t *testing.T, db *gorm.DB, userID uint) decimal.Decimal {
	t.Helper()
	var entries []models.CreditEntry
	require.NoError(t, db.Where("user_id = ?", userID).Find(&entries).Error)
	sum := decimal.Zero
	for _, e := range entries {
		sum = sum.Add(e.Amount)
	}
	return sum
}

func TestChatCost(t *testing.T) {
	// ceil(10 * 512 / 100) = ceil(51.2) = 52
	assert.True(t, ChatCost(10, 512).Equal(decimal.NewFromInt(52)))
	// exact division does not round up
	assert.True(t, ChatCost(10, 500).Equal(decimal.NewFromInt(50)))
	assert.True(t, ChatCost(1, 1).Equal(decimal.NewFromInt(1)))
}

func TestDebitSubtractsAndRecordsEntry(t *testing.T) {
	db := testutil.OpenDB(t)
	user := newUser(t, db, "100")
	svc := NewService(db)

	balance, err := svc.Debit(context.Background(), user.ID, decimal.NewFromInt(52), "chat with bot tutor")
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(48)), "balance = %s", balance)

	var entries []models.CreditEntry
	require.NoError(t, db.Where("user_id = ?", user.ID).Find(&entries).Error)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(decimal.NewFromInt(-52)))
	assert.Equal(t, "chat with bot tutor", entries[0].Description)
}

func TestDebitInsufficientFundsLeavesBalanceUnchanged(t *testing.T) {
	db := testutil.OpenDB(t)
	user := newUser(t, db, "10")
	svc := NewService(db)

	_, err := svc.Debit(context.Background(), user.ID, decimal.NewFromInt(52), "chat")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInsufficientFunds))

	balance, err := svc.Balance(context.Background(), user.ID)
	require.NoError(t, err)
	assert.True(t, balance.Equal(decimal.NewFromInt(10)))

	// rejected debit must not leave an audit entry behind
	var count int64
	require.NoError(t, db.Model(&models.CreditEntry{}).Where("user_id = ?", user.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestBalanceNeverGoesNegative(t *testing.T) {
	db := testutil.OpenDB(t)
	user := newUser(t, db, "25")
	svc := NewService(db)
	ctx := context.Background()

	amounts := []int64{10, 10, 10, 10}
	for _, a := range amounts {
		svc.Debit(ctx, user.ID, decimal.NewFromInt(a), "chat")
	}

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, balance.GreaterThanOrEqual(decimal.Zero), "balance = %s", balance)
	// only the first two debits fit into 25
	assert.True(t, balance.Equal(decimal.NewFromInt(5)))
}

func TestAuditSumEqualsBalance(t *testing.T) {
	db := testutil.OpenDB(t)
	user := newUser(t, db, "0")
	svc := NewService(db)
	ctx := context.Background()

	_, err := svc.Credit(ctx, user.ID, decimal.NewFromInt(100), "Recharge")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, user.ID, decimal.NewFromInt(52), "chat")
	require.NoError(t, err)
	_, err = svc.Debit(ctx, user.ID, decimal.NewFromInt(30), "chat")
	require.NoError(t, err)
	// rejected debit contributes nothing to the trail
	_, err = svc.Debit(ctx, user.ID, decimal.NewFromInt(500), "chat")
	require.Error(t, err)
	_, err = svc.Credit(ctx, user.ID, decimal.NewFromInt(7), "Recharge")
	require.NoError(t, err)

	balance, err := svc.Balance(ctx, user.ID)
	require.NoError(t, err)
	assert.True(t, auditSum(t, db, user.ID).Equal(balance),
		"audit sum %s != balance %s", auditSum(t, db, user.ID), balance)
}

func TestCreditRejectsNonPositiveAmounts(t *testing.T) {
	db := testutil.OpenDB(t)
	user := newUser(t, db, "10")
	svc := NewService(db)

	for _, amount := range []string{"0", "-5"} {
		_, err := svc.Credit(context.Background(), user.ID, decimal.RequireFromString(amount), "Recharge")
		require.Error(t, err)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidArgument))
	}
}

func TestDebitUnknownUser(t *testing.T) {
	db := testutil.OpenDB(t)
	svc := NewService(db)

	_, err := svc.Debit(context.Background(), 999, decimal.NewFromInt(1), "chat")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}
