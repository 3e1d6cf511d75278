package api

import (
	"net/http"

	"creditchat/backend/internal/models"
	"creditchat/backend/internal/registry"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// ModelHandler serves the upstream model registry endpoints.
type ModelHandler struct {
	models *registry.ModelService
}

func NewModelHandler(m *registry.ModelService) *ModelHandler {
	return &ModelHandler{models: m}
}

func (h *ModelHandler) Create(c *gin.Context) {
	var req models.CreateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	model, err := h.models.Create(c.Request.Context(), CurrentUser(c), &req)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, model.ToResponse())
}

func (h *ModelHandler) List(c *gin.Context) {
	list, err := h.models.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	out := make([]models.ModelResponse, 0, len(list))
	for i := range list {
		out = append(out, list[i].ToResponse())
	}
	c.JSON(http.StatusOK, out)
}

func (h *ModelHandler) Get(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	model, err := h.models.Get(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.ToResponse())
}

func (h *ModelHandler) Update(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	var req models.UpdateModelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	if err := h.models.Update(c.Request.Context(), CurrentUser(c), id, &req); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "updated"})
}

func (h *ModelHandler) Delete(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	if err := h.models.Delete(c.Request.Context(), CurrentUser(c), id); err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
