package registry

import (
	"context"
	"errors"
	"fmt"

	"creditchat/backend/internal/models"
	"creditchat/backend/pkg/cache"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BotService manages bot definitions. Bots are soft-deleted: deactivation
// frees the unique name by renaming the record and keeps the row so chat
// history referencing it stays resolvable.
type BotService struct {
	db    *gorm.DB
	cache *cache.Cache
	log   *logger.Logger
}

// NewBotService creates a bot registry service. cache may be nil.
func NewBotService(db *gorm.DB, c *cache.Cache, log *logger.Logger) *BotService {
	return &BotService{db: db, cache: c, log: log}
}

func botCacheKey(id uint) string {
	return fmt.Sprintf("bot:%d", id)
}

// Create registers a new bot owned by user
func (s *BotService) Create(ctx context.Context, user *models.User, req *models.CreateBotRequest) (*models.Bot, error) {
	return s.create(ctx, user, req, false)
}

// CreateOfficial registers a platform-owned bot; admin only
func (s *BotService) CreateOfficial(ctx context.Context, user *models.User, req *models.CreateBotRequest) (*models.Bot, error) {
	if !user.IsAdmin() {
		return nil, apperrors.NewForbiddenError("You are not allowed to create an official bot")
	}
	return s.create(ctx, user, req, true)
}

func (s *BotService) create(ctx context.Context, user *models.User, req *models.CreateBotRequest, official bool) (*models.Bot, error) {
	var model models.Model
	if err := s.db.WithContext(ctx).First(&model, req.ModelID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Model not found")
		}
		return nil, err
	}

	bot := req.ToBot()
	bot.CreatorID = user.ID
	if official {
		bot.BotType = models.BotTypeOfficial
	}

	if err := s.db.WithContext(ctx).Create(&bot).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.NewConflictError("Bot name already exists")
		}
		return nil, err
	}
	return &bot, nil
}

// Get returns a bot, applying private/inactive visibility rules for
// non-admin users.
func (s *BotService) Get(ctx context.Context, user *models.User, botID uint) (*models.Bot, error) {
	bot, err := s.lookup(ctx, botID)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin() {
		if bot.BotType == models.BotTypePrivate && bot.CreatorID != user.ID {
			return nil, apperrors.NewForbiddenError("You are not allowed to view this bot")
		}
		if !bot.Active {
			return nil, apperrors.NewFailedPreconditionError("Bot already deleted")
		}
	}
	return bot, nil
}

// Update applies partial changes to an active bot; only the creator or an
// admin may update it.
func (s *BotService) Update(ctx context.Context, user *models.User, req *models.UpdateBotRequest) error {
	var bot models.Bot
	err := s.db.WithContext(ctx).Where("bot_name = ?", req.BotName).First(&bot).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFoundError("Bot not found")
		}
		return err
	}
	if !bot.Active {
		return apperrors.NewFailedPreconditionError("Bot already deleted")
	}
	if !user.IsAdmin() && bot.CreatorID != user.ID {
		return apperrors.NewForbiddenError("You are not allowed to update this bot")
	}

	updates := map[string]any{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.AvatarURL != nil {
		updates["avatar_url"] = *req.AvatarURL
	}
	if req.Temperature != nil {
		updates["temperature"] = *req.Temperature
	}
	if req.MaxTokens != nil {
		updates["max_tokens"] = *req.MaxTokens
	}
	if req.Prompt != nil {
		updates["prompt"] = *req.Prompt
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&bot).Updates(updates).Error; err != nil {
		return err
	}
	s.invalidate(ctx, bot.ID)
	return nil
}

// Deactivate soft-deletes a bot: the record is tagged inactive, its
// description snapshots the original identity, and the unique name is freed
// by renaming to deleted-<uuid>. Deactivating twice fails with
// FAILED_PRECONDITION and can never produce two active bots with one name.
func (s *BotService) Deactivate(ctx context.Context, user *models.User, botID uint) error {
	var bot models.Bot
	err := s.db.WithContext(ctx).First(&bot, botID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFoundError("Bot not found")
		}
		return err
	}
	if !bot.Active {
		return apperrors.NewFailedPreconditionError("Bot already deleted")
	}
	if !user.IsAdmin() && bot.CreatorID != user.ID {
		return apperrors.NewForbiddenError("You are not allowed to delete this bot")
	}

	description := fmt.Sprintf("Original Bot Name: %s\nOriginal Description: %s", bot.BotName, bot.Description)

	// Generate, then write, retrying on unique-index collision: the rename is
	// a CAS against the bot_name index rather than a check-then-write race.
	for {
		candidate := "deleted-" + uuid.NewString()
		err = s.db.WithContext(ctx).Model(&bot).Updates(map[string]any{
			"bot_name":    candidate,
			"description": description,
			"active":      false,
		}).Error
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			s.log.Warn("Deleted-bot name collision, retrying", "bot_id", bot.ID)
			continue
		}
		break
	}
	if err != nil {
		return err
	}

	s.invalidate(ctx, bot.ID)
	return nil
}

// lookup reads a bot through the cache
func (s *BotService) lookup(ctx context.Context, botID uint) (*models.Bot, error) {
	if s.cache != nil {
		var cached models.Bot
		if err := s.cache.Get(ctx, botCacheKey(botID), &cached); err == nil {
			return &cached, nil
		}
	}

	var bot models.Bot
	err := s.db.WithContext(ctx).First(&bot, botID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Bot not found")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, botCacheKey(botID), &bot); err != nil {
			s.log.Warn("Failed to cache bot", "bot_id", botID, "error", err.Error())
		}
	}
	return &bot, nil
}

func (s *BotService) invalidate(ctx context.Context, botID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, botCacheKey(botID)); err != nil {
		s.log.Warn("Failed to invalidate bot cache", "bot_id", botID, "error", err.Error())
	}
}
