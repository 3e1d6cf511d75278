package registry

import (
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/testutil"
	"creditchat/backend/pkg/cache"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testLogger() *logger.Logger {
	return logger.New(logger.Config{Level: "error", Output: io.Discard})
}

type fixture struct {
	db     *gorm.DB
	bots   *BotService
	modelz *ModelService
	admin  *models.User
	user   *models.User
	model  *models.Model
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := testutil.OpenDB(t)
	log := testLogger()

	admin := &models.User{Username: "admin", Email: "admin@example.com", Password: "secret123", Role: models.RoleAdmin}
	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "secret123"}
	require.NoError(t, db.Create(admin).Error)
	require.NoError(t, db.Create(user).Error)

	model := &models.Model{ModelName: "gpt-test", APIUrl: "https://upstream.example/v1/chat/completions", APIKey: "sk-test", CostRate: 10}
	require.NoError(t, db.Create(model).Error)

	return &fixture{
		db:     db,
		bots:   NewBotService(db, nil, log),
		modelz: NewModelService(db, nil, log),
		admin:  admin,
		user:   user,
		model:  model,
	}
}

func (f *fixture) createBot(t *testing.T, name string, botType string) *models.Bot {
	t.Helper()
	bot, err := f.bots.Create(context.Background(), f.user, &models.CreateBotRequest{
		BotName: name,
		BotType: botType,
		ModelID: f.model.ID,
	})
	require.NoError(t, err)
	return bot
}

func TestCreateBotRejectsDuplicateName(t *testing.T) {
	f := newFixture(t)
	f.createBot(t, "helper", models.BotTypePublic)

	_, err := f.bots.Create(context.Background(), f.user, &models.CreateBotRequest{
		BotName: "helper",
		ModelID: f.model.ID,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeConflict))
}

func TestCreateBotUnknownModel(t *testing.T) {
	f := newFixture(t)

	_, err := f.bots.Create(context.Background(), f.user, &models.CreateBotRequest{
		BotName: "orphan",
		ModelID: 9999,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestCreateOfficialBotRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.bots.CreateOfficial(context.Background(), f.user, &models.CreateBotRequest{
		BotName: "official",
		ModelID: f.model.ID,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	bot, err := f.bots.CreateOfficial(context.Background(), f.admin, &models.CreateBotRequest{
		BotName: "official",
		ModelID: f.model.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.BotTypeOfficial, bot.BotType)
}

func TestDeactivateFreesNameForReuse(t *testing.T) {
	f := newFixture(t)
	bot := f.createBot(t, "helper", models.BotTypePublic)

	require.NoError(t, f.bots.Deactivate(context.Background(), f.user, bot.ID))

	var stored models.Bot
	require.NoError(t, f.db.First(&stored, bot.ID).Error)
	assert.False(t, stored.Active)
	assert.True(t, strings.HasPrefix(stored.BotName, "deleted-"))
	assert.Contains(t, stored.Description, "Original Bot Name: helper")

	// The original name is free again
	again := f.createBot(t, "helper", models.BotTypePublic)
	assert.NotEqual(t, bot.ID, again.ID)
}

func TestDeactivateTwiceFailsPrecondition(t *testing.T) {
	f := newFixture(t)
	bot := f.createBot(t, "helper", models.BotTypePublic)

	require.NoError(t, f.bots.Deactivate(context.Background(), f.user, bot.ID))

	err := f.bots.Deactivate(context.Background(), f.user, bot.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeFailedPrecondition))

	// Exactly one row carries a deleted- name, never two active rows per name
	var count int64
	require.NoError(t, f.db.Model(&models.Bot{}).Where("bot_name LIKE ?", "deleted-%").Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestDeactivateRequiresOwnerOrAdmin(t *testing.T) {
	f := newFixture(t)
	bot := f.createBot(t, "helper", models.BotTypePublic)

	err := f.bots.Deactivate(context.Background(), f.admin, bot.ID)
	require.NoError(t, err, "admin may delete any bot")

	other := f.createBot(t, "helper2", models.BotTypePublic)
	stranger := &models.User{Username: "bob", Email: "bob@example.com", Password: "secret123"}
	require.NoError(t, f.db.Create(stranger).Error)

	err = f.bots.Deactivate(context.Background(), stranger, other.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestGetBotVisibility(t *testing.T) {
	f := newFixture(t)
	private := f.createBot(t, "secret-bot", models.BotTypePrivate)

	_, err := f.bots.Get(context.Background(), f.user, private.ID)
	require.NoError(t, err, "creator sees own private bot")

	stranger := &models.User{Username: "bob", Email: "bob@example.com", Password: "secret123"}
	require.NoError(t, f.db.Create(stranger).Error)
	_, err = f.bots.Get(context.Background(), stranger, private.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	_, err = f.bots.Get(context.Background(), f.admin, private.ID)
	assert.NoError(t, err, "admin sees everything")
}

func TestUpdateBotPartial(t *testing.T) {
	f := newFixture(t)
	bot := f.createBot(t, "helper", models.BotTypePublic)

	temp := 0.2
	err := f.bots.Update(context.Background(), f.user, &models.UpdateBotRequest{
		BotName:     "helper",
		Temperature: &temp,
	})
	require.NoError(t, err)

	var stored models.Bot
	require.NoError(t, f.db.First(&stored, bot.ID).Error)
	assert.InDelta(t, 0.2, stored.Temperature, 1e-9)
	assert.Equal(t, 512, stored.MaxTokens, "untouched fields keep their values")
}

func TestUpdateDeletedBotFailsPrecondition(t *testing.T) {
	f := newFixture(t)
	bot := f.createBot(t, "helper", models.BotTypePublic)
	require.NoError(t, f.bots.Deactivate(context.Background(), f.user, bot.ID))

	var stored models.Bot
	require.NoError(t, f.db.First(&stored, bot.ID).Error)

	prompt := "still there?"
	err := f.bots.Update(context.Background(), f.user, &models.UpdateBotRequest{
		BotName: stored.BotName,
		Prompt:  &prompt,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeFailedPrecondition))
}

func TestModelCRUDRequiresAdmin(t *testing.T) {
	f := newFixture(t)

	_, err := f.modelz.Create(context.Background(), f.user, &models.CreateModelRequest{
		ModelName: "nope", APIUrl: "https://x.example", APIKey: "k", CostRate: 1,
	})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))

	err = f.modelz.Delete(context.Background(), f.user, f.model.ID)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeForbidden))
}

func TestModelDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bot := f.createBot(t, "helper", models.BotTypePublic)
	session := &models.Session{UserID: f.user.ID, BotID: bot.ID, MaxTokens: bot.MaxTokens}
	require.NoError(t, f.db.Create(session).Error)
	require.NoError(t, f.db.Create(&models.ChatTurn{SessionID: session.ID, SenderRole: models.SenderUser, Content: "hi"}).Error)

	require.NoError(t, f.modelz.Delete(ctx, f.admin, f.model.ID))

	for _, probe := range []struct {
		name  string
		model any
	}{
		{"models", &models.Model{}},
		{"bots", &models.Bot{}},
		{"sessions", &models.Session{}},
		{"chat_turns", &models.ChatTurn{}},
	} {
		var count int64
		require.NoError(t, f.db.Model(probe.model).Count(&count).Error)
		assert.Zero(t, count, "expected no rows left in %s", probe.name)
	}
}

func TestModelDeleteUnknown(t *testing.T) {
	f := newFixture(t)
	err := f.modelz.Delete(context.Background(), f.admin, 4242)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))
}

func TestBotCacheInvalidatedOnDeactivate(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := cache.NewWithClient(client, 0)

	db := testutil.OpenDB(t)
	log := testLogger()
	user := &models.User{Username: "alice", Email: "alice@example.com", Password: "secret123"}
	require.NoError(t, db.Create(user).Error)
	model := &models.Model{ModelName: "gpt-test", APIUrl: "https://upstream.example", APIKey: "k", CostRate: 1}
	require.NoError(t, db.Create(model).Error)

	svc := NewBotService(db, c, log)
	ctx := context.Background()

	bot, err := svc.Create(ctx, user, &models.CreateBotRequest{BotName: "helper", ModelID: model.ID})
	require.NoError(t, err)

	// First read populates the cache
	_, err = svc.Get(ctx, user, bot.ID)
	require.NoError(t, err)
	assert.True(t, mr.Exists(fmt.Sprintf("bot:%d", bot.ID)))

	require.NoError(t, svc.Deactivate(ctx, user, bot.ID))
	assert.False(t, mr.Exists(fmt.Sprintf("bot:%d", bot.ID)))
}
