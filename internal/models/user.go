package models

import "time"

// User представляет пользователя (tenant) в системе
type User struct {
	CreatedAt    time.Time `json:"created_at"`    // время создания
	UpdatedAt    time.Time `json:"updated_at"`    // время последнего обновления
	ID           string    `json:"id"`            // UUID пользователя
	Username     string    `json:"username"`      // уникальный username
	PasswordHash string    `json:"password_hash"` // bcrypt хеш пароля
}

// RefreshToken представляет refresh token пользователя
type RefreshToken struct {
	ExpiresAt time.Time `json:"expires_at"` // время истечения
	CreatedAt time.Time `json:"created_at"` // время создания
	ID        string    `json:"id"`         // UUID токена
	UserID    string    `json:"user_id"`    // ID пользователя
	TokenHash string    `json:"token_hash"` // SHA256 хеш токена (hex)
}
