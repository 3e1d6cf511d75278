package models

import "time"

// Model is an upstream chat-completion provider entry in the registry.
// CostRate is the price in credit units per 100 generated tokens; the chat
// cost formula ceiling-rounds against it.
type Model struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ModelName   string    `gorm:"uniqueIndex;size:50" json:"model_name"`
	Description string    `gorm:"type:text" json:"description"`
	APIUrl      string    `json:"api_url"`
	APIKey      string    `json:"-"` // raw key or a vault:<path> reference
	CostRate    int       `gorm:"default:1" json:"cost_rate"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateModelRequest is the request structure for registering a model
type CreateModelRequest struct {
	ModelName   string `json:"model_name" binding:"required,max=50"`
	Description string `json:"description"`
	APIUrl      string `json:"api_url" binding:"required,url"`
	APIKey      string `json:"api_key" binding:"required"`
	CostRate    int    `json:"cost_rate" binding:"required,min=1"`
}

// ToModel converts a create request into a Model
func (r *CreateModelRequest) ToModel() Model {
	return Model{
		ModelName:   r.ModelName,
		Description: r.Description,
		APIUrl:      r.APIUrl,
		APIKey:      r.APIKey,
		CostRate:    r.CostRate,
	}
}

// UpdateModelRequest carries partial model updates
type UpdateModelRequest struct {
	Description *string `json:"description"`
	APIUrl      *string `json:"api_url"`
	APIKey      *string `json:"api_key"`
	CostRate    *int    `json:"cost_rate" binding:"omitempty,min=1"`
}

// ModelResponse hides the upstream credential
type ModelResponse struct {
	ID          uint      `json:"id"`
	ModelName   string    `json:"model_name"`
	Description string    `json:"description"`
	APIUrl      string    `json:"api_url"`
	CostRate    int       `json:"cost_rate"`
	CreatedAt   time.Time `json:"created_at"`
}

// ToResponse converts a Model to its API representation
func (m *Model) ToResponse() ModelResponse {
	return ModelResponse{
		ID:          m.ID,
		ModelName:   m.ModelName,
		Description: m.Description,
		APIUrl:      m.APIUrl,
		CostRate:    m.CostRate,
		CreatedAt:   m.CreatedAt,
	}
}
