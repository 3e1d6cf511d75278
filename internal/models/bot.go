package models

import "time"

// Bot visibility types
const (
	BotTypeOfficial = "OFFICIAL"
	BotTypePublic   = "PUBLIC"
	BotTypePrivate  = "PRIVATE"
)

// Bot is a chat persona bound to an upstream model. Bots are soft-deleted:
// deactivation renames the record to free the unique name and flips Active,
// so chat history referencing the bot stays resolvable.
type Bot struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	BotName     string    `gorm:"uniqueIndex;size:50" json:"bot_name"`
	Description string    `gorm:"type:text" json:"description"`
	BotType     string    `gorm:"default:PUBLIC" json:"bot_type"`
	CreatorID   uint      `gorm:"index" json:"creator_id"`
	Creator     User      `json:"-"`
	ModelID     uint      `gorm:"index" json:"model_id"`
	Model       Model     `json:"-"`
	AvatarURL   string    `gorm:"default:default_bot_avatar.png" json:"avatar_url"`
	Temperature float64   `gorm:"default:0.8" json:"temperature"`
	MaxTokens   int       `gorm:"default:512" json:"max_tokens"`
	Prompt      string    `gorm:"type:text" json:"prompt"`
	Active      bool      `gorm:"default:true" json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateBotRequest is the request structure for creating a bot
type CreateBotRequest struct {
	BotName     string   `json:"bot_name" binding:"required,max=50"`
	Description string   `json:"description"`
	BotType     string   `json:"bot_type" binding:"omitempty,oneof=PUBLIC PRIVATE"`
	ModelID     uint     `json:"model_id" binding:"required"`
	AvatarURL   string   `json:"avatar_url"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Prompt      string   `json:"prompt"`
}

// ToBot converts a create request into a Bot with defaults applied
func (r *CreateBotRequest) ToBot() Bot {
	bot := Bot{
		BotName:     r.BotName,
		Description: r.Description,
		BotType:     r.BotType,
		ModelID:     r.ModelID,
		AvatarURL:   r.AvatarURL,
		Temperature: 0.8,
		MaxTokens:   512,
		Prompt:      r.Prompt,
		Active:      true,
	}
	if bot.BotType == "" {
		bot.BotType = BotTypePublic
	}
	if bot.AvatarURL == "" {
		bot.AvatarURL = "default_bot_avatar.png"
	}
	if r.Temperature != nil {
		bot.Temperature = *r.Temperature
	}
	if r.MaxTokens != nil {
		bot.MaxTokens = *r.MaxTokens
	}
	return bot
}

// UpdateBotRequest carries partial bot updates; nil fields are left untouched
type UpdateBotRequest struct {
	BotName     string   `json:"bot_name" binding:"required"`
	Description *string  `json:"description"`
	AvatarURL   *string  `json:"avatar_url"`
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
	Prompt      *string  `json:"prompt"`
}
