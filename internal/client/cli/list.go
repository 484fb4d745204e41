package cli

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"text/tabwriter"
)

func (c *Cli) runList(ctx context.Context, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: docsync list <collection>")
	}
	collection := args[0]

	if _, err := c.collectionConfig(collection); err != nil {
		return err
	}

	records, err := c.records.ListActiveRecords(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to list records: %w", err)
	}

	if len(records) == 0 {
		c.io.Printf("No records in %q.\n", collection)
		return nil
	}

	// Свежие изменения сверху
	sort.Slice(records, func(i, j int) bool {
		return records[i].Meta.UpdatedAt.After(records[j].Meta.UpdatedAt)
	})

	w := tabwriter.NewWriter(c.io, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATUS\tUPDATED\tFIELDS")
	for _, rec := range records {
		updated := "-"
		if !rec.Meta.UpdatedAt.IsZero() {
			updated = rec.Meta.UpdatedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			rec.Meta.ID,
			rec.Local.SyncStatus,
			updated,
			summarizeFields(rec.Fields),
		)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	c.io.Println()
	c.io.Printf("%d record(s)\n", len(records))
	return nil
}

// summarizeFields строит короткую сводку payload для табличного вывода
func summarizeFields(fields map[string]any) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		value := fmt.Sprintf("%v", fields[k])
		if len(value) > 24 {
			value = value[:21] + "..."
		}
		parts = append(parts, k+"="+value)
	}

	summary := strings.Join(parts, " ")
	if len(summary) > 72 {
		summary = summary[:69] + "..."
	}
	return summary
}
