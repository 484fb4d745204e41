package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ivankh/docsync/internal/client/storage"
	"github.com/ivankh/docsync/internal/models"
)

func (c *Cli) runDelete(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docsync delete <collection> <id>")
	}
	collection, id := args[0], args[1]

	cfg, err := c.collectionConfig(collection)
	if err != nil {
		return err
	}
	if !cfg.PushEligible() {
		return fmt.Errorf("collection %q is pull-only", collection)
	}

	rec, err := c.records.GetRecord(ctx, collection, id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record %s not found in %q", id, collection)
		}
		return fmt.Errorf("failed to get record: %w", err)
	}
	if rec.Meta.IsDeleted {
		return fmt.Errorf("record %s is already deleted", id)
	}

	confirm, err := c.io.ReadInput(fmt.Sprintf("Delete record %s? [y/N]: ", id))
	if err != nil {
		return fmt.Errorf("failed to read confirmation: %w", err)
	}
	if !strings.EqualFold(confirm, "y") && !strings.EqualFold(confirm, "yes") {
		c.io.Println("Aborted.")
		return nil
	}

	if err := c.engine.TrackChange(ctx, collection, models.OperationDelete, rec); err != nil {
		return fmt.Errorf("failed to track delete: %w", err)
	}

	c.io.Printf("Record %s marked for deletion, tombstone queued for sync.\n", id)
	return nil
}
