package api

import (
	"net/http"
	"strconv"

	"creditchat/backend/internal/conversation"
	"creditchat/backend/internal/models"
	"creditchat/backend/internal/session"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// SessionHandler serves session lifecycle and history endpoints.
type SessionHandler struct {
	sessions *session.Manager
	conv     *conversation.Store
}

func NewSessionHandler(sessions *session.Manager, conv *conversation.Store) *SessionHandler {
	return &SessionHandler{sessions: sessions, conv: conv}
}

type createSessionRequest struct {
	BotID uint `json:"bot_id" binding:"required"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	var req createSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	sess, err := h.sessions.Create(c.Request.Context(), CurrentUser(c), req.BotID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

func (h *SessionHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	sessions, err := h.sessions.List(c.Request.Context(), CurrentUser(c), limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	if sessions == nil {
		sessions = []models.Session{}
	}
	c.JSON(http.StatusOK, sessions)
}

func (h *SessionHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	var req models.UpdateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	if err := h.sessions.UpdateMaxTokens(c.Request.Context(), CurrentUser(c), id, req.MaxTokens); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *SessionHandler) History(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	// Ownership and liveness checks happen in Resolve.
	if _, err := h.sessions.Resolve(c.Request.Context(), CurrentUser(c), id); err != nil {
		c.Error(err)
		return
	}

	turns, err := h.conv.History(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	c.JSON(http.StatusOK, turns)
}
