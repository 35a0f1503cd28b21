package shell

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// EventIDGenerator returns a unique, time-sortable id for an audit row written at the given time.
type EventIDGenerator func(at time.Time) string

// NewULIDGenerator returns a goroutine-safe generator of monotonic ULIDs.
func NewULIDGenerator() EventIDGenerator {
	var mu sync.Mutex

	entropy := ulid.Monotonic(rand.Reader, 0)

	return func(at time.Time) string {
		mu.Lock()
		defer mu.Unlock()

		return ulid.MustNew(ulid.Timestamp(at), entropy).String()
	}
}
