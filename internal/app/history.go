package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/nhle/steam-trading-notice/internal/store"
)

// PrintHistory writes the newest limit deliveries to w, one per line.
func PrintHistory(ctx context.Context, w io.Writer, st store.Store, limit int) error {
	deliveries, err := st.RecentDeliveries(ctx, limit)
	if err != nil {
		return err
	}
	if len(deliveries) == 0 {
		_, err := fmt.Fprintln(w, "no deliveries recorded")
		return err
	}

	for _, d := range deliveries {
		line := fmt.Sprintf("%s  %-9s  %-6s  %s  to=%s",
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.Kind,
			d.Status,
			d.Subject,
			strings.Join(d.Recipients, ","),
		)
		if d.Error != "" {
			line += "  error=" + d.Error
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
