package model

import "time"

// DashboardAdmin is an operator account for the read-only status dashboard.
type DashboardAdmin struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// AdminLoginRequest is the dashboard login payload.
type AdminLoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

// SetVisibilityRequest toggles an exam's menu visibility.
type SetVisibilityRequest struct {
	IsHidden *bool `json:"is_hidden" binding:"required"`
}
