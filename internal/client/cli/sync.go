package cli

import (
	"context"
	"fmt"
	"time"
)

func (c *Cli) runSync(ctx context.Context) error {
	c.io.Println("=== Synchronization ===")
	c.io.Println()
	c.io.Println("Syncing with server...")

	if err := c.engine.Sync(ctx); err != nil {
		return fmt.Errorf("synchronization failed: %w", err)
	}

	health := c.engine.Health().Snapshot()
	if health.BreakerOpen {
		c.io.Printf("Sync postponed: too many consecutive failures, retrying after %s.\n",
			health.BreakerResetAt.Format(time.RFC3339))
		return nil
	}

	c.io.Println()
	c.io.Println("Synchronization completed.")
	if health.PendingCount > 0 {
		c.io.Printf("Still pending: %d change(s)\n", health.PendingCount)
	} else {
		c.io.Println("All local changes pushed.")
	}

	return nil
}
