package api

import (
	"net/http"
	"strconv"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/registry"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// BotHandler serves the bot registry endpoints.
type BotHandler struct {
	bots *registry.BotService
}

func NewBotHandler(bots *registry.BotService) *BotHandler {
	return &BotHandler{bots: bots}
}

func (h *BotHandler) Create(c *gin.Context) {
	var req models.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	bot, err := h.bots.Create(c.Request.Context(), CurrentUser(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *BotHandler) CreateOfficial(c *gin.Context) {
	var req models.CreateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	bot, err := h.bots.CreateOfficial(c.Request.Context(), CurrentUser(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, bot)
}

func (h *BotHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	bot, err := h.bots.Get(c.Request.Context(), CurrentUser(c), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, bot)
}

func (h *BotHandler) Update(c *gin.Context) {
	var req models.UpdateBotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	if err := h.bots.Update(c.Request.Context(), CurrentUser(c), &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *BotHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.bots.Deactivate(c.Request.Context(), CurrentUser(c), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// pathID parses a numeric path parameter
func pathID(c *gin.Context, name string) (uint, error) {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, apperrors.NewInvalidArgumentError("Invalid " + name + " parameter")
	}
	return uint(id), nil
}
