package postgresengine

import "context"

// Classify exposes the SQLSTATE mapping to the external test package.
func Classify(ctx context.Context, err error) error {
	return (&Store{}).classify(ctx, err)
}
