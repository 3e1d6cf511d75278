package models

import "time"

// Session binds a user to a bot for one conversation. The bot binding is
// immutable after creation; MaxTokens starts as a snapshot of the bot's
// default and can be adjusted per session. UpdatedAt is bumped on every
// interaction and orders sessions by recency.
type Session struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"index" json:"user_id"`
	User      User      `json:"-"`
	BotID     uint      `gorm:"index" json:"bot_id"`
	Bot       Bot       `json:"-"`
	MaxTokens int       `gorm:"default:512" json:"max_tokens"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateSessionRequest adjusts the per-session token budget
type UpdateSessionRequest struct {
	MaxTokens int `json:"max_tokens" binding:"required,min=1"`
}
