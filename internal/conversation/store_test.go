package conversation

import (
	"context"
	"fmt"
	"testing"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func seedSession(t *testing.T, db *gorm.DB) *models.Session {
	t.Helper()
	user := models.User{Username: "bob", Email: "bob@example.com", Password: "s3cret-pass"}
	require.NoError(t, db.Create(&user).Error)
	model := models.Model{ModelName: "gpt-4o-mini", APIUrl: "https://api.example.com/v1/chat/completions", APIKey: "sk-test", CostRate: 10}
	require.NoError(t, db.Create(&model).Error)
	bot := models.Bot{BotName: "tutor", CreatorID: user.ID, ModelID: model.ID, Active: true, MaxTokens: 512}
	require.NoError(t, db.Create(&bot).Error)
	session := models.Session{UserID: user.ID, BotID: bot.ID, MaxTokens: 512}
	require.NoError(t, db.Create(&session).Error)
	return &session
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	db := testutil.OpenDB(t)
	session := seedSession(t, db)
	store := NewStore(db)
	ctx := context.Background()

	var last uint
	for i := 0; i < 3; i++ {
		turn, err := store.Append(ctx, session.ID, models.SenderUser, fmt.Sprintf("message %d", i))
		require.NoError(t, err)
		assert.Greater(t, turn.ID, last)
		last = turn.ID
	}
}

func TestWindowBeforeReturnsAscendingWindow(t *testing.T) {
	db := testutil.OpenDB(t)
	session := seedSession(t, db)
	store := NewStore(db)
	ctx := context.Background()

	ids := make([]uint, 0, 5)
	for i := 1; i <= 5; i++ {
		turn, err := store.Append(ctx, session.ID, models.SenderUser, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		ids = append(ids, turn.ID)
	}

	// cursor at the 4th turn, window of 3 -> turns 2,3,4 oldest first
	window, err := store.WindowBefore(ctx, session.ID, ids[3], 3)
	require.NoError(t, err)
	require.Len(t, window, 3)
	assert.Equal(t, []uint{ids[1], ids[2], ids[3]}, []uint{window[0].ID, window[1].ID, window[2].ID})
	assert.Equal(t, "m2", window[0].Content)
	assert.Equal(t, "m4", window[2].Content)
}

func TestWindowBeforeShortHistory(t *testing.T) {
	db := testutil.OpenDB(t)
	session := seedSession(t, db)
	store := NewStore(db)
	ctx := context.Background()

	first, err := store.Append(ctx, session.ID, models.SenderUser, "hello")
	require.NoError(t, err)
	second, err := store.Append(ctx, session.ID, models.SenderAssistant, "hi there")
	require.NoError(t, err)

	window, err := store.WindowBefore(ctx, session.ID, second.ID, 20)
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, first.ID, window[0].ID)
	assert.Equal(t, second.ID, window[1].ID)
}

func TestWindowBeforeScopedToSession(t *testing.T) {
	db := testutil.OpenDB(t)
	sessionA := seedSession(t, db)
	sessionB := models.Session{UserID: sessionA.UserID, BotID: sessionA.BotID, MaxTokens: 512}
	require.NoError(t, db.Create(&sessionB).Error)

	store := NewStore(db)
	ctx := context.Background()

	_, err := store.Append(ctx, sessionA.ID, models.SenderUser, "a-turn")
	require.NoError(t, err)
	bTurn, err := store.Append(ctx, sessionB.ID, models.SenderUser, "b-turn")
	require.NoError(t, err)

	window, err := store.WindowBefore(ctx, sessionB.ID, bTurn.ID, 20)
	require.NoError(t, err)
	require.Len(t, window, 1)
	assert.Equal(t, "b-turn", window[0].Content)
}
