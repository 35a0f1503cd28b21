package store

import "context"

// ConsistencyLevel defines the consistency requirements of a read-only unit.
type ConsistencyLevel int

const (
	// StrongConsistency reads from the primary. It is the default.
	StrongConsistency ConsistencyLevel = iota

	// EventualConsistency allows reads from a replica. Catalog browsing uses it.
	EventualConsistency
)

type contextKey string

// ConsistencyLevelKey is the context key holding the consistency level.
const ConsistencyLevelKey contextKey = "store.consistency_level"

// WithStrongConsistency returns a context that forces reads to the primary.
func WithStrongConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, StrongConsistency)
}

// WithEventualConsistency returns a context that allows reads from a replica.
func WithEventualConsistency(ctx context.Context) context.Context {
	return context.WithValue(ctx, ConsistencyLevelKey, EventualConsistency)
}

// GetConsistencyLevel extracts the consistency level, defaulting to StrongConsistency.
func GetConsistencyLevel(ctx context.Context) ConsistencyLevel {
	if level, ok := ctx.Value(ConsistencyLevelKey).(ConsistencyLevel); ok {
		return level
	}

	return StrongConsistency
}

func (c ConsistencyLevel) String() string {
	switch c {
	case StrongConsistency:
		return "strong"
	case EventualConsistency:
		return "eventual"
	default:
		return "unknown"
	}
}
