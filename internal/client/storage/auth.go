package storage

import "context"

// AuthData данные сессии, сохраняемые на клиенте
type AuthData struct {
	UserID       string `json:"user_id"`
	Username     string `json:"username"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresAt    int64  `json:"expires_at"` // unix seconds
}

//go:generate moq -out auth_mock.go . AuthStorage

// AuthStorage defines interface for storing client session data
type AuthStorage interface {
	// SaveAuth stores session data, replacing any existing session
	SaveAuth(ctx context.Context, auth *AuthData) error

	// GetAuth retrieves the current session
	// Returns ErrAuthNotFound if no session exists
	GetAuth(ctx context.Context) (*AuthData, error)

	// DeleteAuth removes the current session
	DeleteAuth(ctx context.Context) error
}
