package api

import (
	"errors"
	"net/http"

	"creditchat/backend/internal/models"
	apperrors "creditchat/backend/pkg/errors"
	"creditchat/backend/pkg/jwt"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	db         *gorm.DB
	jwtService *jwt.Service
}

func NewAuthHandler(db *gorm.DB, jwtService *jwt.Service) *AuthHandler {
	return &AuthHandler{db: db, jwtService: jwtService}
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req models.CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	user := models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}
	if err := h.db.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			c.Error(apperrors.NewConflictError("Username or email already taken"))
			return
		}
		c.Error(err)
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"token": token,
		"user":  user.ToResponse(),
	})
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req models.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidArgumentError(err.Error()))
		return
	}

	var user models.User
	if err := h.db.Where("username = ?", req.Username).First(&user).Error; err != nil {
		c.Error(apperrors.NewUnauthorizedError("Invalid username or password"))
		return
	}
	if !models.CheckPasswordHash(req.Password, user.Password) {
		c.Error(apperrors.NewUnauthorizedError("Invalid username or password"))
		return
	}

	token, err := h.jwtService.GenerateToken(user.ID, user.Username)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token": token,
		"user":  user.ToResponse(),
	})
}
