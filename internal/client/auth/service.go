// Package auth управляет сессией клиента: регистрация, логин,
// хранение токенов и их прозрачное обновление для движка синхронизации.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ivankh/docsync/internal/client/api"
	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/validation"
	pkgapi "github.com/ivankh/docsync/pkg/api"
)

// refreshLeeway — запас до истечения access token, после которого
// токен считается протухшим и обновляется заранее
const refreshLeeway = 30 * time.Second

// ErrNotAuthenticated возвращается, когда локальной сессии нет
var ErrNotAuthenticated = errors.New("not authenticated")

// Service предоставляет функции авторизации клиента
type Service struct {
	apiClient api.ClientAPI
	authStore storage.AuthStorage
	logger    *slog.Logger

	// refresh не должен выполняться конкурентно из нескольких
	// сетевых операций движка
	mu sync.Mutex

	now func() time.Time
}

// NewService создает новый сервис авторизации
func NewService(logger *slog.Logger, apiClient api.ClientAPI, authStore storage.AuthStorage) *Service {
	return &Service{
		apiClient: apiClient,
		authStore: authStore,
		logger:    logger,
		now:       time.Now,
	}
}

// Register регистрирует нового пользователя на сервере.
// Сессия не создается — после регистрации нужен Login.
func (s *Service) Register(ctx context.Context, username, password string) (*pkgapi.RegisterResponse, error) {
	if err := validation.ValidateUsername(username); err != nil {
		return nil, fmt.Errorf("invalid username: %w", err)
	}
	if err := validation.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("invalid password: %w", err)
	}

	resp, err := s.apiClient.Register(ctx, pkgapi.RegisterRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return nil, fmt.Errorf("registration failed: %w", err)
	}

	s.logger.Info("user registered", slog.String("username", username))
	return resp, nil
}

// Login выполняет аутентификацию и сохраняет сессию локально
func (s *Service) Login(ctx context.Context, username, password string) error {
	if err := validation.ValidateUsername(username); err != nil {
		return fmt.Errorf("invalid username: %w", err)
	}
	if password == "" {
		return fmt.Errorf("password is required")
	}

	resp, err := s.apiClient.Login(ctx, pkgapi.LoginRequest{
		Username: username,
		Password: password,
	})
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	if err := s.saveSession(ctx, username, resp); err != nil {
		return err
	}

	s.logger.Info("user logged in", slog.String("username", username))
	return nil
}

// Logout уведомляет сервер (best effort) и удаляет локальную сессию
func (s *Service) Logout(ctx context.Context) error {
	auth, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrAuthNotFound) {
			return fmt.Errorf("failed to get auth data: %w", err)
		}
	} else {
		if logoutErr := s.apiClient.Logout(ctx, auth.AccessToken); logoutErr != nil {
			// Сервер может быть недоступен — локальная сессия
			// удаляется в любом случае
			s.logger.Warn("failed to logout on server", slog.Any("error", logoutErr))
		}
	}

	if err := s.authStore.DeleteAuth(ctx); err != nil {
		return fmt.Errorf("failed to delete local auth data: %w", err)
	}

	s.logger.Info("user logged out")
	return nil
}

// IsAuthenticated проверяет наличие локальной сессии
func (s *Service) IsAuthenticated(ctx context.Context) (bool, error) {
	_, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// CurrentSession возвращает сохраненную сессию
func (s *Service) CurrentSession(ctx context.Context) (*storage.AuthData, error) {
	auth, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return nil, ErrNotAuthenticated
		}
		return nil, err
	}
	return auth, nil
}

// Credentials возвращает userID и валидный access token, обновляя
// пару токенов при приближении истечения. Сигнатура совместима с
// sync.CredentialsFunc.
func (s *Service) Credentials(ctx context.Context) (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return "", "", ErrNotAuthenticated
		}
		return "", "", fmt.Errorf("failed to get auth data: %w", err)
	}

	expiresAt := time.Unix(auth.ExpiresAt, 0)
	if s.now().Add(refreshLeeway).Before(expiresAt) {
		return auth.UserID, auth.AccessToken, nil
	}

	refreshed, err := s.refreshLocked(ctx, auth)
	if err != nil {
		return "", "", err
	}
	return refreshed.UserID, refreshed.AccessToken, nil
}

// RefreshToken принудительно обновляет пару токенов
func (s *Service) RefreshToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	auth, err := s.authStore.GetAuth(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrAuthNotFound) {
			return ErrNotAuthenticated
		}
		return fmt.Errorf("failed to get auth data: %w", err)
	}

	_, err = s.refreshLocked(ctx, auth)
	return err
}

func (s *Service) refreshLocked(ctx context.Context, auth *storage.AuthData) (*storage.AuthData, error) {
	resp, err := s.apiClient.Refresh(ctx, pkgapi.RefreshRequest{RefreshToken: auth.RefreshToken})
	if err != nil {
		return nil, fmt.Errorf("token refresh failed: %w", err)
	}

	if err := s.saveSession(ctx, auth.Username, resp); err != nil {
		return nil, err
	}

	s.logger.Debug("tokens refreshed", slog.String("user_id", resp.UserID))

	return &storage.AuthData{
		UserID:       resp.UserID,
		Username:     auth.Username,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.now().Unix() + resp.ExpiresIn,
	}, nil
}

func (s *Service) saveSession(ctx context.Context, username string, resp *pkgapi.TokenResponse) error {
	auth := &storage.AuthData{
		UserID:       resp.UserID,
		Username:     username,
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    s.now().Unix() + resp.ExpiresIn,
	}
	if err := s.authStore.SaveAuth(ctx, auth); err != nil {
		return fmt.Errorf("failed to save auth data: %w", err)
	}
	return nil
}
