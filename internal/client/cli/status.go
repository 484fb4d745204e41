package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runStatus(ctx context.Context) error {
	c.io.Println("=== Status ===")
	c.io.Println()

	isAuth, err := c.authService.IsAuthenticated(ctx)
	if err != nil {
		return fmt.Errorf("failed to check authentication: %w", err)
	}

	if !isAuth {
		c.io.Println("Session: not authenticated")
		c.io.Println()
		c.io.Println("Run 'docsync login' to authenticate.")
		return nil
	}

	session, err := c.authService.CurrentSession(ctx)
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	expiresAt := time.Unix(session.ExpiresAt, 0)
	c.io.Println("Session: authenticated")
	c.io.Printf("Username: %s\n", session.Username)
	c.io.Printf("Token expires: %s\n", expiresAt.Format(time.RFC3339))
	if remaining := time.Until(expiresAt); remaining <= 0 {
		c.io.Println("Access token expired, it will be refreshed on next sync.")
	}

	pending, err := c.queue.QueueCount(ctx)
	if err != nil {
		return fmt.Errorf("failed to count pending operations: %w", err)
	}

	c.io.Println()
	if pending > 0 {
		c.io.Printf("Pending sync: %d change(s) waiting to be pushed\n", pending)
	} else {
		c.io.Println("All local changes are synchronized.")
	}

	health := c.engine.Health().Snapshot()
	c.io.Printf("Online: %v\n", health.Online)
	if health.BreakerOpen {
		c.io.Printf("Circuit breaker: open until %s\n", health.BreakerResetAt.Format(time.RFC3339))
	}
	if !health.LastSyncAt.IsZero() {
		c.io.Printf("Last successful sync: %s\n", health.LastSyncAt.Format(time.RFC3339))
	}
	if health.LastError != nil {
		c.io.Printf("Last sync error: %s\n", health.LastError.Code)
	}

	if len(health.Checkpoints) > 0 {
		c.io.Println()
		c.io.Println("Collection checkpoints:")
		for name, cp := range health.Checkpoints {
			c.io.Printf("  %-12s %s\n", name, cp.Format(time.RFC3339))
		}
	}

	return nil
}
