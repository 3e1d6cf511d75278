package models

import (
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Roles a user account can hold
const (
	RoleAdmin = "ADMIN"
	RoleUser  = "USER"
)

// User represents a platform account. The credit balance is mutated only by
// the ledger service; everything else belongs to the account subsystem.
type User struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Username  string          `gorm:"uniqueIndex;size:50" json:"username"`
	Email     string          `gorm:"uniqueIndex;size:100" json:"email"`
	Password  string          `json:"-"` // Never return password in JSON
	Role      string          `gorm:"default:USER" json:"role"`
	Credits   decimal.Decimal `gorm:"type:numeric(10,2);default:0" json:"credits"`
	Bio       string          `gorm:"type:text" json:"bio"`
	AvatarURL string          `gorm:"default:default_user_avatar.png" json:"avatar_url"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// IsAdmin reports whether the account has administrative privileges.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CreateUserRequest is the request structure for registration
type CreateUserRequest struct {
	Username string `json:"username" binding:"required,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

// LoginRequest is the request structure for user login
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// UserResponse is the response structure for user data (without sensitive info)
type UserResponse struct {
	ID        uint            `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      string          `json:"role"`
	Credits   decimal.Decimal `json:"credits"`
	Bio       string          `json:"bio"`
	AvatarURL string          `json:"avatar_url"`
	CreatedAt time.Time       `json:"created_at"`
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// BeforeCreate is a GORM hook to hash the password before saving
func (u *User) BeforeCreate(tx *gorm.DB) error {
	hashed, err := HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed

	if u.Role == "" {
		u.Role = RoleUser
	}
	return nil
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		Credits:   u.Credits,
		Bio:       u.Bio,
		AvatarURL: u.AvatarURL,
		CreatedAt: u.CreatedAt,
	}
}
