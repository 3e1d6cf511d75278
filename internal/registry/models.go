package registry

import (
	"context"
	"errors"
	"fmt"

	"creditchat/backend/internal/models"
	"creditchat/backend/pkg/cache"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/logger"

	"gorm.io/gorm"
)

// ModelService manages upstream model definitions. All operations are
// admin-gated except read paths used internally by session resolution.
type ModelService struct {
	db    *gorm.DB
	cache *cache.Cache
	log   *logger.Logger
}

// NewModelService creates a model registry service. cache may be nil.
func NewModelService(db *gorm.DB, c *cache.Cache, log *logger.Logger) *ModelService {
	return &ModelService{db: db, cache: c, log: log}
}

func modelCacheKey(id uint) string {
	return fmt.Sprintf("model:%d", id)
}

// Create registers a new upstream model
func (s *ModelService) Create(ctx context.Context, user *models.User, req *models.CreateModelRequest) (*models.Model, error) {
	if !user.IsAdmin() {
		return nil, apperrors.NewForbiddenError("You are not allowed to manage models")
	}

	model := req.ToModel()
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperrors.NewConflictError("Model name already exists")
		}
		return nil, err
	}
	return &model, nil
}

// Get returns a model by id
func (s *ModelService) Get(ctx context.Context, modelID uint) (*models.Model, error) {
	if s.cache != nil {
		var cached models.Model
		if err := s.cache.Get(ctx, modelCacheKey(modelID), &cached); err == nil {
			return &cached, nil
		}
	}

	var model models.Model
	err := s.db.WithContext(ctx).First(&model, modelID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Model not found")
		}
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, modelCacheKey(modelID), &model); err != nil {
			s.log.Warn("Failed to cache model", "model_id", modelID, "error", err.Error())
		}
	}
	return &model, nil
}

// List returns all registered models
func (s *ModelService) List(ctx context.Context) ([]models.Model, error) {
	var out []models.Model
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Update applies partial changes to a model
func (s *ModelService) Update(ctx context.Context, user *models.User, modelID uint, req *models.UpdateModelRequest) error {
	if !user.IsAdmin() {
		return apperrors.NewForbiddenError("You are not allowed to manage models")
	}

	var model models.Model
	err := s.db.WithContext(ctx).First(&model, modelID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.NewNotFoundError("Model not found")
		}
		return err
	}

	updates := map[string]any{}
	if req.Description != nil {
		updates["description"] = *req.Description
	}
	if req.APIUrl != nil {
		updates["api_url"] = *req.APIUrl
	}
	if req.APIKey != nil {
		updates["api_key"] = *req.APIKey
	}
	if req.CostRate != nil {
		updates["cost_rate"] = *req.CostRate
	}
	if len(updates) == 0 {
		return nil
	}

	if err := s.db.WithContext(ctx).Model(&model).Updates(updates).Error; err != nil {
		return err
	}
	s.invalidate(ctx, modelID)
	return nil
}

// Delete removes a model and everything hanging off it: bots backed by the
// model, sessions bound to those bots, and the turns of those sessions, all
// in one transaction so a failure leaves no orphans.
func (s *ModelService) Delete(ctx context.Context, user *models.User, modelID uint) error {
	if !user.IsAdmin() {
		return apperrors.NewForbiddenError("You are not allowed to manage models")
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model models.Model
		if err := tx.First(&model, modelID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.NewNotFoundError("Model not found")
			}
			return err
		}

		var botIDs []uint
		if err := tx.Model(&models.Bot{}).Where("model_id = ?", modelID).Pluck("id", &botIDs).Error; err != nil {
			return err
		}

		if len(botIDs) > 0 {
			var sessionIDs []uint
			if err := tx.Model(&models.Session{}).Where("bot_id IN ?", botIDs).Pluck("id", &sessionIDs).Error; err != nil {
				return err
			}
			if len(sessionIDs) > 0 {
				if err := tx.Where("session_id IN ?", sessionIDs).Delete(&models.ChatTurn{}).Error; err != nil {
					return err
				}
				if err := tx.Where("id IN ?", sessionIDs).Delete(&models.Session{}).Error; err != nil {
					return err
				}
			}
			if err := tx.Where("id IN ?", botIDs).Delete(&models.Bot{}).Error; err != nil {
				return err
			}
		}

		return tx.Delete(&model).Error
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx, modelID)
	s.log.Info("Model deleted with dependents", "model_id", modelID)
	return nil
}

func (s *ModelService) invalidate(ctx context.Context, modelID uint) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, modelCacheKey(modelID)); err != nil {
		s.log.Warn("Failed to invalidate model cache", "model_id", modelID, "error", err.Error())
	}
}
