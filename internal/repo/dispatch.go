package repo

import (
	"context"
	"time"
)

// IntentSeen reports whether a sweep intent key was already dispatched.
// Sweep runs re-emit identical intents; this is the consumer-side dedupe.
func (r Repo) IntentSeen(ctx context.Context, key string) (bool, error) {
	var n int
	err := r.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM dispatch_seen WHERE intent_key=?`, key).Scan(&n)
	return n > 0, err
}

func (r Repo) MarkIntentSeen(ctx context.Context, key string, at time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO dispatch_seen(intent_key, seen_at) VALUES (?,?) ON CONFLICT(intent_key) DO NOTHING`,
		key, timeString(at))
	return err
}
