package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ivankh/docsync/pkg/api"
)

//go:generate moq -out client_mock.go . ClientAPI

// ClientAPI определяет интерфейс HTTP клиента сервера синхронизации
type ClientAPI interface {
	// Register регистрирует нового пользователя
	Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error)

	// Login выполняет аутентификацию пользователя
	Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error)

	// Refresh обновляет access token по refresh token
	Refresh(ctx context.Context, req api.RefreshRequest) (*api.TokenResponse, error)

	// Logout инвалидирует refresh token на сервере
	Logout(ctx context.Context, accessToken string) error

	// Pull запрашивает строки коллекции с updated_at > since,
	// отсортированные по updated_at по возрастанию, не более limit
	Pull(ctx context.Context, accessToken, collection string, since time.Time, limit int) (*api.PullResponse, error)

	// Push выполняет upsert одной строки (keyed by id, идемпотентен)
	Push(ctx context.Context, accessToken string, req api.PushRequest) (*api.PushResponse, error)

	// SoftDelete помечает строку удаленной (is_deleted=true, deleted_at=now)
	SoftDelete(ctx context.Context, accessToken string, req api.DeleteRequest) (*api.DeleteResponse, error)

	// Subscribe открывает change feed по заданным коллекциям.
	// Канал закрывается при отмене контекста или обрыве соединения.
	Subscribe(ctx context.Context, accessToken string, collections []string) (<-chan api.ChangeEvent, error)
}

// Client представляет HTTP клиент для взаимодействия с сервером
type Client struct {
	httpClient *http.Client
	feedClient *http.Client
	baseURL    string
}

// Compile-time check that Client implements ClientAPI
var _ ClientAPI = (*Client)(nil)

// NewClient создает новый API клиент
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// Для SSE-потока общий таймаут недопустим: соединение живет
		// до отмены контекста
		feedClient: &http.Client{},
	}
}

// Register регистрирует нового пользователя
func (c *Client) Register(ctx context.Context, req api.RegisterRequest) (*api.RegisterResponse, error) {
	var resp api.RegisterResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/register", "", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("register request failed: %w", err)
	}
	return &resp, nil
}

// Login выполняет аутентификацию пользователя
func (c *Client) Login(ctx context.Context, req api.LoginRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/login", "", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("login request failed: %w", err)
	}
	return &resp, nil
}

// Refresh обновляет access token
func (c *Client) Refresh(ctx context.Context, req api.RefreshRequest) (*api.TokenResponse, error) {
	var resp api.TokenResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/refresh", "", req, &resp)
	if err != nil {
		return nil, fmt.Errorf("refresh request failed: %w", err)
	}
	return &resp, nil
}

// Logout инвалидирует refresh token на сервере
func (c *Client) Logout(ctx context.Context, accessToken string) error {
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/auth/logout", accessToken, nil, nil)
	if err != nil {
		return fmt.Errorf("logout request failed: %w", err)
	}
	return nil
}

// Pull запрашивает инкрементальный батч строк коллекции
func (c *Client) Pull(ctx context.Context, accessToken, collection string, since time.Time, limit int) (*api.PullResponse, error) {
	params := url.Values{}
	params.Set("collection", collection)
	params.Set("since", strconv.FormatInt(since.UnixNano(), 10))
	params.Set("limit", strconv.Itoa(limit))

	var resp api.PullResponse
	err := c.doRequest(ctx, http.MethodGet, "/api/v1/sync/pull?"+params.Encode(), accessToken, nil, &resp)
	if err != nil {
		return nil, fmt.Errorf("pull request failed: %w", err)
	}
	return &resp, nil
}

// Push выполняет upsert одной строки
func (c *Client) Push(ctx context.Context, accessToken string, req api.PushRequest) (*api.PushResponse, error) {
	var resp api.PushResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/push", accessToken, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("push request failed: %w", err)
	}
	return &resp, nil
}

// SoftDelete помечает строку удаленной, физически не удаляя ее
func (c *Client) SoftDelete(ctx context.Context, accessToken string, req api.DeleteRequest) (*api.DeleteResponse, error) {
	var resp api.DeleteResponse
	err := c.doRequest(ctx, http.MethodPost, "/api/v1/sync/delete", accessToken, req, &resp)
	if err != nil {
		return nil, fmt.Errorf("delete request failed: %w", err)
	}
	return &resp, nil
}

// doRequest выполняет HTTP запрос
func (c *Client) doRequest(ctx context.Context, method, path, accessToken string, body, result any) error {
	reqURL := c.baseURL + path

	var bodyReader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.parseErrorResponse(resp)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// parseErrorResponse строит ошибку из тела ответа сервера.
// Код статуса остается в тексте — по нему классифицируется SyncError.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp api.ErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("server returned status %d: %s", resp.StatusCode, errResp.Error)
	}
	return fmt.Errorf("server returned status %d", resp.StatusCode)
}
