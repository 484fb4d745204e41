package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/ivankh/docsync/internal/models"
)

func (c *Cli) runAdd(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docsync add <collection>")
	}
	collection := args[0]

	cfg, err := c.collectionConfig(collection)
	if err != nil {
		return err
	}
	if !cfg.PushEligible() {
		return fmt.Errorf("collection %q is pull-only", collection)
	}

	c.io.Printf("=== Add record to %q ===\n", collection)
	c.io.Println()
	c.io.Println("Enter fields as key=value, empty line to finish:")

	fields := make(map[string]any)
	for {
		line, err := c.io.ReadInput("> ")
		if err != nil {
			return fmt.Errorf("failed to read field: %w", err)
		}
		if line == "" {
			break
		}

		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			c.io.Println("expected key=value, try again")
			continue
		}
		fields[key] = strings.TrimSpace(value)
	}

	if len(fields) == 0 {
		return fmt.Errorf("record must have at least one field")
	}

	record := &models.Record{
		Meta: models.SyncMetadata{
			ID: uuid.New().String(),
		},
		Fields: fields,
	}

	if err := c.engine.TrackChange(ctx, collection, models.OperationCreate, record); err != nil {
		return fmt.Errorf("failed to track change: %w", err)
	}

	c.io.Println()
	c.io.Printf("Record %s queued for sync.\n", record.Meta.ID)
	return nil
}
