package conversation

import (
	"context"
	"errors"

	"creditchat/backend/internal/metrics"
	"creditchat/backend/internal/models"

	"gorm.io/gorm"
)

// DefaultWindowSize is the number of turns handed to the upstream model as
// conversational context.
const DefaultWindowSize = 20

// Store is the append-only log of chat turns per session.
type Store struct {
	db      *gorm.DB
	metrics *metrics.Metrics
}

// NewStore creates a conversation store
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, metrics: metrics.Global()}
}

// Append inserts one turn at the end of the session's log.
func (s *Store) Append(ctx context.Context, sessionID uint, role, content string) (*models.ChatTurn, error) {
	turn := models.ChatTurn{
		SessionID:  sessionID,
		SenderRole: role,
		Content:    content,
		MediaType:  models.MediaText,
	}
	if err := s.db.WithContext(ctx).Create(&turn).Error; err != nil {
		return nil, err
	}
	s.metrics.TurnsPersisted.Inc()
	return &turn, nil
}

// WindowBefore returns at most limit turns with id <= cursor, oldest first.
// The ascending order is a contract: it is the order the upstream model sees
// the conversation in.
func (s *Store) WindowBefore(ctx context.Context, sessionID uint, cursor uint, limit int) ([]models.ChatTurn, error) {
	if limit <= 0 {
		limit = DefaultWindowSize
	}

	var turns []models.ChatTurn
	err := s.db.WithContext(ctx).
		Where("session_id = ? AND id <= ?", sessionID, cursor).
		Order("id DESC").
		Limit(limit).
		Find(&turns).Error
	if err != nil {
		return nil, err
	}

	// The query walks backwards from the cursor to find the window; flip it
	// into chronological order before handing it out.
	for i, j := 0, len(turns)-1; i < j; i, j = i+1, j-1 {
		turns[i], turns[j] = turns[j], turns[i]
	}
	return turns, nil
}

// History returns the full log for a session in chronological order.
func (s *Store) History(ctx context.Context, sessionID uint) ([]models.ChatTurn, error) {
	var turns []models.ChatTurn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&turns).Error
	return turns, err
}

// Latest returns the most recent turn of a session, or nil when the session
// has no turns yet.
func (s *Store) Latest(ctx context.Context, sessionID uint) (*models.ChatTurn, error) {
	var turn models.ChatTurn
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id DESC").
		First(&turn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &turn, nil
}

// DeleteBySessions bulk-removes turns owned by the given sessions. Only the
// registry cascade calls this; individual turns are never deleted.
func (s *Store) DeleteBySessions(ctx context.Context, tx *gorm.DB, sessionIDs []uint) error {
	if len(sessionIDs) == 0 {
		return nil
	}
	if tx == nil {
		tx = s.db.WithContext(ctx)
	}
	return tx.Where("session_id IN ?", sessionIDs).Delete(&models.ChatTurn{}).Error
}
