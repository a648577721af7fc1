package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/resendio/resend/go/internal/dbconfig"
)

// Removes session markers whose cooldown can no longer be live and trims
// old send_log rows. Run from cron; the gateway also clears markers lazily
// on restore, so this only catches identifiers that never came back.
func main() {
	retentionHours := 24
	if v := os.Getenv("MARKER_RETENTION_HOURS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			retentionHours = n
		}
	}
	logRetentionDays := 30
	if v := os.Getenv("SEND_LOG_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			logRetentionDays = n
		}
	}

	cfg := dbconfig.NewConfigFromEnv()
	pool, err := pgxpool.New(context.Background(), cfg.DSN())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer pool.Close()

	markerTag, err := pool.Exec(context.Background(), `
        DELETE FROM send_markers
        WHERE sent_at < now() - make_interval(hours => $1)
    `, retentionHours)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error purging markers: %v\n", err)
		os.Exit(1)
	}

	logTag, err := pool.Exec(context.Background(), `
        DELETE FROM send_log
        WHERE sent_at < now() - make_interval(days => $1)
    `, logRetentionDays)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error trimming send log: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf(
		"Purge complete: %d stale markers removed (>%dh), %d send_log rows trimmed (>%dd)\n",
		markerTag.RowsAffected(), retentionHours,
		logTag.RowsAffected(), logRetentionDays,
	)
}
