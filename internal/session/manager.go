package session

import (
	"context"
	"errors"
	"time"

	"creditchat/backend/internal/models"
	apperrors "creditchat/backend/pkg/errors"

	"gorm.io/gorm"
)

// Manager owns session lifecycle: the user-bot binding, the per-session token
// budget, and the access-control checks every chat operation goes through.
type Manager struct {
	db *gorm.DB
}

// NewManager creates a session manager
func NewManager(db *gorm.DB) *Manager {
	return &Manager{db: db}
}

// Resolve loads a session with its bot and model, enforcing ownership and
// bot liveness. Every chat-path operation starts here.
func (m *Manager) Resolve(ctx context.Context, user *models.User, sessionID uint) (*models.Session, error) {
	var session models.Session
	err := m.db.WithContext(ctx).
		Preload("Bot").
		Preload("Bot.Model").
		First(&session, sessionID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Session not found")
		}
		return nil, err
	}
	if session.UserID != user.ID {
		return nil, apperrors.NewForbiddenError("You are not allowed to view this session")
	}
	if !session.Bot.Active {
		return nil, apperrors.NewFailedPreconditionError("Bot already deleted")
	}
	return &session, nil
}

// Create binds user and bot into a new session, snapshotting the bot's
// current max-tokens as the session default.
func (m *Manager) Create(ctx context.Context, user *models.User, botID uint) (*models.Session, error) {
	var bot models.Bot
	err := m.db.WithContext(ctx).First(&bot, botID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Bot not found")
		}
		return nil, err
	}
	if !bot.Active {
		return nil, apperrors.NewFailedPreconditionError("Bot already deleted")
	}
	if bot.BotType == models.BotTypePrivate && bot.CreatorID != user.ID && !user.IsAdmin() {
		return nil, apperrors.NewForbiddenError("You are not allowed to create a session for this bot")
	}

	session := models.Session{
		UserID:    user.ID,
		BotID:     bot.ID,
		MaxTokens: bot.MaxTokens,
	}
	if err := m.db.WithContext(ctx).Create(&session).Error; err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns the user's sessions ordered by recency
func (m *Manager) List(ctx context.Context, user *models.User, limit, offset int) ([]models.Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var sessions []models.Session
	err := m.db.WithContext(ctx).
		Where("user_id = ?", user.ID).
		Order("updated_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&sessions).Error
	return sessions, err
}

// UpdateMaxTokens adjusts the per-session token budget after re-validating
// ownership and bot liveness.
func (m *Manager) UpdateMaxTokens(ctx context.Context, user *models.User, sessionID uint, maxTokens int) error {
	session, err := m.Resolve(ctx, user, sessionID)
	if err != nil {
		return err
	}
	return m.db.WithContext(ctx).Model(session).
		Updates(map[string]any{"max_tokens": maxTokens, "updated_at": time.Now()}).Error
}

// Touch bumps the session's recency watermark
func (m *Manager) Touch(ctx context.Context, sessionID uint) error {
	return m.db.WithContext(ctx).Model(&models.Session{}).
		Where("id = ?", sessionID).
		UpdateColumn("updated_at", time.Now()).Error
}
