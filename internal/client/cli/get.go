package cli

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/ivankh/docsync/internal/client/storage"
)

func (c *Cli) runGet(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: docsync get <collection> <id>")
	}
	collection, id := args[0], args[1]

	if _, err := c.collectionConfig(collection); err != nil {
		return err
	}

	rec, err := c.records.GetRecord(ctx, collection, id)
	if err != nil {
		if errors.Is(err, storage.ErrRecordNotFound) {
			return fmt.Errorf("record %s not found in %q", id, collection)
		}
		return fmt.Errorf("failed to get record: %w", err)
	}

	c.io.Printf("ID:            %s\n", rec.Meta.ID)
	c.io.Printf("Collection:    %s\n", collection)
	c.io.Printf("Sync status:   %s\n", rec.Local.SyncStatus)
	if rec.Local.SyncError != "" {
		c.io.Printf("Sync error:    %s\n", rec.Local.SyncError)
	}
	c.io.Printf("Logical clock: %d\n", rec.Meta.LogicalClock)
	c.io.Printf("Origin device: %s\n", rec.Meta.OriginDeviceID)
	if !rec.Meta.UpdatedAt.IsZero() {
		c.io.Printf("Updated:       %s\n", rec.Meta.UpdatedAt.Format(time.RFC3339))
	}
	if rec.Meta.IsDeleted {
		c.io.Println("Deleted:       yes (tombstone)")
	}

	c.io.Println()
	c.io.Println("Fields:")
	keys := make([]string, 0, len(rec.Fields))
	for k := range rec.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		c.io.Printf("  %s: %v\n", k, rec.Fields[k])
	}

	return nil
}
