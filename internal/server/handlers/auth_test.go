package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/crypto"
	"github.com/ivankh/docsync/internal/models"
	"github.com/ivankh/docsync/internal/server/storage"
	"github.com/ivankh/docsync/pkg/api"
)

// mockUserStorage is a mock implementation of UserStorage for testing
type mockUserStorage struct {
	users       map[string]*models.User // username -> User
	createError error
}

func (m *mockUserStorage) CreateUser(ctx context.Context, user *models.User) error {
	if m.createError != nil {
		return m.createError
	}
	if _, exists := m.users[user.Username]; exists {
		return storage.ErrUserAlreadyExists
	}
	m.users[user.Username] = user
	return nil
}

func (m *mockUserStorage) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	user, ok := m.users[username]
	if !ok {
		return nil, storage.ErrUserNotFound
	}
	return user, nil
}

func (m *mockUserStorage) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	for _, user := range m.users {
		if user.ID == id {
			return user, nil
		}
	}
	return nil, storage.ErrUserNotFound
}

// mockTokenStorage is a mock implementation of TokenStorage for testing
type mockTokenStorage struct {
	tokens map[string]*models.RefreshToken // token_hash -> RefreshToken
}

func (m *mockTokenStorage) SaveRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.tokens[token.TokenHash] = token
	return nil
}

func (m *mockTokenStorage) GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error) {
	token, ok := m.tokens[tokenHash]
	if !ok {
		return nil, storage.ErrTokenNotFound
	}
	return token, nil
}

func (m *mockTokenStorage) DeleteRefreshToken(ctx context.Context, tokenHash string) error {
	if _, ok := m.tokens[tokenHash]; !ok {
		return storage.ErrTokenNotFound
	}
	delete(m.tokens, tokenHash)
	return nil
}

func (m *mockTokenStorage) DeleteUserTokens(ctx context.Context, userID string) (int, error) {
	deleted := 0
	for hash, token := range m.tokens {
		if token.UserID == userID {
			delete(m.tokens, hash)
			deleted++
		}
	}
	return deleted, nil
}

func (m *mockTokenStorage) DeleteExpiredTokens(ctx context.Context) (int, error) {
	return 0, nil
}

func testJWTConfig() JWTConfig {
	return JWTConfig{
		Secret:          []byte("test-secret"),
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	}
}

func newAuthFixture() (*AuthHandler, *mockUserStorage, *mockTokenStorage) {
	users := &mockUserStorage{users: make(map[string]*models.User)}
	tokens := &mockTokenStorage{tokens: make(map[string]*models.RefreshToken)}
	h := NewAuthHandler(testLogger(), users, tokens, testJWTConfig())
	return h, users, tokens
}

func postJSON(t *testing.T, handler http.HandlerFunc, path string, body any) *httptest.ResponseRecorder {
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler(w, req)
	return w
}

func TestAuthHandler_Register(t *testing.T) {
	h, users, _ := newAuthFixture()

	w := postJSON(t, h.Register, "/api/v1/auth/register", api.RegisterRequest{
		Username: "alice",
		Password: "correct-horse",
	})

	require.Equal(t, http.StatusCreated, w.Code)

	var resp api.RegisterResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.UserID)

	// Пароль сохранен как bcrypt хеш, не открытым текстом
	created := users.users["alice"]
	require.NotNil(t, created)
	assert.NotEqual(t, "correct-horse", created.PasswordHash)
	assert.NoError(t, crypto.VerifyPassword("correct-horse", created.PasswordHash))
}

func TestAuthHandler_Register_Validation(t *testing.T) {
	h, _, _ := newAuthFixture()

	tests := []struct {
		name     string
		username string
		password string
	}{
		{name: "short username", username: "ab", password: "correct-horse"},
		{name: "invalid characters", username: "alice!", password: "correct-horse"},
		{name: "short password", username: "alice", password: "short"},
		{name: "empty password", username: "alice", password: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postJSON(t, h.Register, "/api/v1/auth/register", api.RegisterRequest{
				Username: tt.username,
				Password: tt.password,
			})
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAuthHandler_Register_Duplicate(t *testing.T) {
	h, _, _ := newAuthFixture()

	req := api.RegisterRequest{Username: "alice", Password: "correct-horse"}
	w := postJSON(t, h.Register, "/api/v1/auth/register", req)
	require.Equal(t, http.StatusCreated, w.Code)

	w = postJSON(t, h.Register, "/api/v1/auth/register", req)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAuthHandler_Login(t *testing.T) {
	h, users, tokens := newAuthFixture()

	hash, err := crypto.HashPassword("correct-horse")
	require.NoError(t, err)
	users.users["alice"] = &models.User{ID: "user-1", Username: "alice", PasswordHash: hash}

	w := postJSON(t, h.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "alice",
		Password: "correct-horse",
	})

	require.Equal(t, http.StatusOK, w.Code)

	var resp api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "user-1", resp.UserID)
	assert.Equal(t, int64((15 * time.Minute).Seconds()), resp.ExpiresIn)

	// Access token валиден и несет user_id
	claims, err := ValidateAccessToken(testJWTConfig(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	// В хранилище лежит хеш refresh токена, не сам токен
	_, ok := tokens.tokens[resp.RefreshToken]
	assert.False(t, ok)
	_, ok = tokens.tokens[crypto.HashToken(resp.RefreshToken)]
	assert.True(t, ok)
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	h, users, _ := newAuthFixture()

	hash, err := crypto.HashPassword("correct-horse")
	require.NoError(t, err)
	users.users["alice"] = &models.User{ID: "user-1", Username: "alice", PasswordHash: hash}

	// Неверный пароль
	w := postJSON(t, h.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "alice",
		Password: "wrong-password",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Несуществующий пользователь — тот же ответ, без утечки информации
	w = postJSON(t, h.Login, "/api/v1/auth/login", api.LoginRequest{
		Username: "nobody",
		Password: "correct-horse",
	})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Refresh_RotatesTokens(t *testing.T) {
	h, users, tokens := newAuthFixture()
	users.users["alice"] = &models.User{ID: "user-1", Username: "alice"}

	oldToken := "old-refresh-token"
	tokens.tokens[crypto.HashToken(oldToken)] = &models.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: crypto.HashToken(oldToken),
		ExpiresAt: time.Now().Add(time.Hour),
	}

	w := postJSON(t, h.Refresh, "/api/v1/auth/refresh", api.RefreshRequest{RefreshToken: oldToken})
	require.Equal(t, http.StatusOK, w.Code)

	var resp api.TokenResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEqual(t, oldToken, resp.RefreshToken)

	// Старый токен инвалидирован
	_, ok := tokens.tokens[crypto.HashToken(oldToken)]
	assert.False(t, ok)
	_, ok = tokens.tokens[crypto.HashToken(resp.RefreshToken)]
	assert.True(t, ok)
}

func TestAuthHandler_Refresh_Expired(t *testing.T) {
	h, users, tokens := newAuthFixture()
	users.users["alice"] = &models.User{ID: "user-1", Username: "alice"}

	expired := "expired-token"
	tokens.tokens[crypto.HashToken(expired)] = &models.RefreshToken{
		ID:        "token-1",
		UserID:    "user-1",
		TokenHash: crypto.HashToken(expired),
		ExpiresAt: time.Now().Add(-time.Hour),
	}

	w := postJSON(t, h.Refresh, "/api/v1/auth/refresh", api.RefreshRequest{RefreshToken: expired})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Refresh_Unknown(t *testing.T) {
	h, _, _ := newAuthFixture()

	w := postJSON(t, h.Refresh, "/api/v1/auth/refresh", api.RefreshRequest{RefreshToken: "bogus"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout(t *testing.T) {
	h, users, tokens := newAuthFixture()
	users.users["alice"] = &models.User{ID: "user-1", Username: "alice"}

	accessToken, _, err := GenerateAccessToken(testJWTConfig(), "user-1", "alice")
	require.NoError(t, err)

	tokens.tokens["hash-1"] = &models.RefreshToken{UserID: "user-1", TokenHash: "hash-1"}
	tokens.tokens["hash-2"] = &models.RefreshToken{UserID: "user-1", TokenHash: "hash-2"}
	tokens.tokens["hash-3"] = &models.RefreshToken{UserID: "user-2", TokenHash: "hash-3"}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+accessToken)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, tokens.tokens, 1)
	_, ok := tokens.tokens["hash-3"]
	assert.True(t, ok)
}

func TestAuthHandler_Logout_NoToken(t *testing.T) {
	h, _, _ := newAuthFixture()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	w := httptest.NewRecorder()
	h.Logout(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateAccessToken_WrongSecret(t *testing.T) {
	token, _, err := GenerateAccessToken(testJWTConfig(), "user-1", "alice")
	require.NoError(t, err)

	badCfg := testJWTConfig()
	badCfg.Secret = []byte("other-secret")
	_, err = ValidateAccessToken(badCfg, token)
	assert.Error(t, err)
}
