package matchmaker

import "context"

// Repo abstracts one matching pool per (variant, stake, seat count).
type Repo interface {
	// Enqueue appends the player to the bucket, oldest first.
	Enqueue(ctx context.Context, variant string, stake int64, seats int, userID string, ttlSeconds int) error
	// PopOldest atomically removes and returns exactly n entries in
	// join order, or nothing if the bucket holds fewer than n. Two
	// concurrent pops can never hand out the same entry.
	PopOldest(ctx context.Context, variant string, stake int64, seats int, n int) ([]string, error)
	// Remove cancels a pending entry; a no-op if already matched.
	Remove(ctx context.Context, userID string) error
	// Count returns the bucket size.
	Count(ctx context.Context, variant string, stake int64, seats int) (int64, error)
}
