package service

import "context"

// Store remembers which signal ids were already relayed, for the retention
// window. Signals without an id are never deduplicated: the caller chose
// at-least-once semantics by omitting it.
type Store interface {
	IsProcessed(ctx context.Context, signalID string) (bool, error)
	MarkProcessed(ctx context.Context, signalID string) error
}
