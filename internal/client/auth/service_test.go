package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ivankh/docsync/internal/client/storage/boltdb"
	"github.com/ivankh/docsync/pkg/api"
)

// fakeAuthAPI реализует api.ClientAPI для тестов сервиса авторизации
type fakeAuthAPI struct {
	registerFn func(req api.RegisterRequest) (*api.RegisterResponse, error)
	loginFn    func(req api.LoginRequest) (*api.TokenResponse, error)
	refreshFn  func(req api.RefreshRequest) (*api.TokenResponse, error)
	logoutFn   func(accessToken string) error

	refreshCalls int
	logoutCalls  int
}

func (f *fakeAuthAPI) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	if f.registerFn == nil {
		return &api.RegisterResponse{UserID: "user-1"}, nil
	}
	return f.registerFn(req)
}

func (f *fakeAuthAPI) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	if f.loginFn == nil {
		return &api.TokenResponse{
			AccessToken:  "access-1",
			RefreshToken: "refresh-1",
			UserID:       "user-1",
			ExpiresIn:    900,
		}, nil
	}
	return f.loginFn(req)
}

func (f *fakeAuthAPI) Refresh(ctx context.Context, req api.RefreshRequest) (*api.TokenResponse, error) {
	f.refreshCalls++
	if f.refreshFn == nil {
		return &api.TokenResponse{
			AccessToken:  "access-2",
			RefreshToken: "refresh-2",
			UserID:       "user-1",
			ExpiresIn:    900,
		}, nil
	}
	return f.refreshFn(req)
}

func (f *fakeAuthAPI) Logout(ctx context.Context, accessToken string) error {
	f.logoutCalls++
	if f.logoutFn == nil {
		return nil
	}
	return f.logoutFn(accessToken)
}

func (f *fakeAuthAPI) Pull(ctx context.Context, accessToken, collection string, since time.Time, limit int) (*api.PullResponse, error) {
	return &api.PullResponse{}, nil
}

func (f *fakeAuthAPI) Push(ctx context.Context, accessToken string, req api.PushRequest) (*api.PushResponse, error) {
	return &api.PushResponse{}, nil
}

func (f *fakeAuthAPI) SoftDelete(ctx context.Context, accessToken string, req api.DeleteRequest) (*api.DeleteResponse, error) {
	return &api.DeleteResponse{}, nil
}

func (f *fakeAuthAPI) Subscribe(ctx context.Context, accessToken string, collections []string) (<-chan api.ChangeEvent, error) {
	events := make(chan api.ChangeEvent)
	go func() {
		<-ctx.Done()
		close(events)
	}()
	return events, nil
}

func newServiceFixture(t *testing.T) (*Service, *fakeAuthAPI, *boltdb.Storage) {
	ctx := context.Background()

	store, err := boltdb.New(ctx, filepath.Join(t.TempDir(), "client.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	apiClient := &fakeAuthAPI{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(logger, apiClient, store), apiClient, store
}

func TestService_LoginSavesSession(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))

	session, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", session.UserID)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, "access-1", session.AccessToken)
	assert.Equal(t, "refresh-1", session.RefreshToken)
	assert.Greater(t, session.ExpiresAt, time.Now().Unix())

	ok, err := svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestService_Login_InvalidInput(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceFixture(t)

	assert.Error(t, svc.Login(ctx, "ab", "correct-horse"))
	assert.Error(t, svc.Login(ctx, "alice", ""))
}

func TestService_Register_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceFixture(t)

	_, err := svc.Register(ctx, "alice", "short")
	assert.Error(t, err)

	resp, err := svc.Register(ctx, "alice", "correct-horse")
	require.NoError(t, err)
	assert.Equal(t, "user-1", resp.UserID)
}

func TestService_Credentials_FreshTokenNotRefreshed(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))

	userID, token, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "access-1", token)
	assert.Equal(t, 0, apiClient.refreshCalls)
}

func TestService_Credentials_RefreshesExpiredToken(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))

	// Переводим часы за границу истечения токена
	svc.now = func() time.Time { return time.Now().Add(time.Hour) }

	userID, token, err := svc.Credentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, "access-2", token)
	assert.Equal(t, 1, apiClient.refreshCalls)

	// Новая пара токенов сохранена
	session, err := svc.CurrentSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", session.RefreshToken)
}

func TestService_Credentials_NotAuthenticated(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := newServiceFixture(t)

	_, _, err := svc.Credentials(ctx)
	assert.ErrorIs(t, err, ErrNotAuthenticated)
}

func TestService_RefreshToken_Failure(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))

	apiClient.refreshFn = func(req api.RefreshRequest) (*api.TokenResponse, error) {
		return nil, fmt.Errorf("server returned status 401: Unauthorized")
	}

	err := svc.RefreshToken(ctx)
	assert.Error(t, err)

	// Старая сессия не удалена — пользователь может перелогиниться сам
	_, sessionErr := svc.CurrentSession(ctx)
	assert.NoError(t, sessionErr)
}

func TestService_Logout(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))
	require.NoError(t, svc.Logout(ctx))

	assert.Equal(t, 1, apiClient.logoutCalls)

	ok, err := svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Logout_ServerUnavailable(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Login(ctx, "alice", "correct-horse"))

	apiClient.logoutFn = func(string) error {
		return fmt.Errorf("connection refused")
	}

	// Локальная сессия удаляется даже при недоступном сервере
	require.NoError(t, svc.Logout(ctx))

	ok, err := svc.IsAuthenticated(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestService_Logout_NoSession(t *testing.T) {
	ctx := context.Background()
	svc, apiClient, _ := newServiceFixture(t)

	require.NoError(t, svc.Logout(ctx))
	assert.Equal(t, 0, apiClient.logoutCalls)
}
