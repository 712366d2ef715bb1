package dto

import "time"

type LoginRequest struct {
	Secret string `json:"secret" binding:"required"`
}

type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
