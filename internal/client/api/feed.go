package api

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ivankh/docsync/pkg/api"
)

// Subscribe открывает SSE-поток change feed по заданным коллекциям.
// Возвращенный канал закрывается при отмене контекста, обрыве соединения
// или закрытии потока сервером.
func (c *Client) Subscribe(ctx context.Context, accessToken string, collections []string) (<-chan api.ChangeEvent, error) {
	params := url.Values{}
	params.Set("collections", strings.Join(collections, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/sync/feed?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create feed request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.feedClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("feed request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := c.parseErrorResponse(resp)
		resp.Body.Close()
		return nil, err
	}

	events := make(chan api.ChangeEvent, 16)

	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

		for scanner.Scan() {
			line := scanner.Text()

			// SSE: интересуют только data-строки; heartbeat-комментарии
			// (": ping") и пустые разделители пропускаем
			payload, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}

			var event api.ChangeEvent
			if err := json.Unmarshal([]byte(payload), &event); err != nil {
				// Битое событие пропускаем: следующий pull его доберет
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
		}
	}()

	return events, nil
}
