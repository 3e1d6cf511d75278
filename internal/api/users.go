package api

import (
	"net/http"
	"strconv"

	"creditchat/backend/internal/ledger"
	"creditchat/backend/internal/models"
	apperrors "creditchat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
)

// UserHandler serves the account profile and credit endpoints.
type UserHandler struct {
	ledger *ledger.Service
}

func NewUserHandler(led *ledger.Service) *UserHandler {
	return &UserHandler{ledger: led}
}

func (h *UserHandler) Me(c *gin.Context) {
	c.JSON(http.StatusOK, CurrentUser(c).ToResponse())
}

func (h *UserHandler) Balance(c *gin.Context) {
	user := CurrentUser(c)
	balance, err := h.ledger.Balance(c.Request.Context(), user.ID)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": balance})
}

// BalanceByID reads another account's balance. Owners may read their
// own; anyone else's requires the admin role.
func (h *UserHandler) BalanceByID(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		c.Error(err)
		return
	}

	user := CurrentUser(c)
	if user.ID != id && !user.IsAdmin() {
		c.Error(apperrors.NewForbiddenError("Admin access required"))
		return
	}

	balance, err := h.ledger.Balance(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": balance})
}

func (h *UserHandler) Recharge(c *gin.Context) {
	var req models.RechargeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	user := CurrentUser(c)
	balance, err := h.ledger.Credit(c.Request.Context(), user.ID, req.Amount, "Account recharge")
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"credits": balance})
}

func (h *UserHandler) CreditHistory(c *gin.Context) {
	user := CurrentUser(c)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))

	entries, err := h.ledger.History(c.Request.Context(), user.ID, limit, offset)
	if err != nil {
		c.Error(err)
		return
	}
	if entries == nil {
		entries = []models.CreditEntry{}
	}
	c.JSON(http.StatusOK, entries)
}
