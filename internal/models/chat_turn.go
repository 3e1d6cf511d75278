package models

import "time"

// Sender roles for a chat turn
const (
	SenderUser      = "USER"
	SenderAssistant = "ASSISTANT"
)

// Media types a turn can carry
const (
	MediaText    = "TEXT"
	MediaPicture = "PICTURE"
	MediaAudio   = "AUDIO"
)

// ChatTurn is one message in a session's conversation log. Turns are
// append-only; the id is monotonically increasing and doubles as the cursor
// for context-window reconstruction.
type ChatTurn struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	SessionID  uint      `gorm:"index" json:"session_id"`
	Session    Session   `json:"-"`
	SenderRole string    `json:"sender_role"`
	Content    string    `gorm:"type:text" json:"content"`
	MediaType  string    `gorm:"default:TEXT" json:"media_type"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SendMessageRequest is the inbound chat-send payload
type SendMessageRequest struct {
	Message string `json:"message" binding:"required"`
}
