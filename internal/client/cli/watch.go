package cli

import (
	"context"
	"fmt"
)

// runWatch запускает движок с realtime-подпиской и фоновым циклом
// и блокируется до отмены контекста (Ctrl+C в main)
func (c *Cli) runWatch(ctx context.Context) error {
	c.io.Println("=== Watch ===")
	c.io.Println()
	c.io.Println("Starting background sync, press Ctrl+C to stop...")

	if err := c.engine.Start(ctx, true); err != nil {
		return fmt.Errorf("failed to start sync engine: %w", err)
	}

	<-ctx.Done()

	c.io.Println()
	c.io.Println("Stopping...")
	c.engine.Stop()
	c.io.Println("Stopped.")

	return nil
}
