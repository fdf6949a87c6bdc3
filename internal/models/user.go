package models

import (
	"time"
)

// PortalUser is an external, access-limited account linked to a business
// entity such as a supplier or customer.
type PortalUser struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	ParentType   string    `json:"parent_type"`
	ParentRef    string    `json:"parent_ref"`
	CreatedAt    time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  *PortalUser `json:"user"`
}
