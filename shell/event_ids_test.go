package shell_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/circulation-core/shell"
)

func Test_NewULIDGenerator_IsMonotonicWithinOneMillisecond(t *testing.T) {
	// setup
	generate := shell.NewULIDGenerator()
	at := time.Unix(0, 0).UTC()

	// act
	first := generate(at)
	second := generate(at)

	// assert
	assert.Less(t, first, second)

	parsed, err := ulid.ParseStrict(second)
	require.NoError(t, err)
	assert.Equal(t, ulid.Timestamp(at), parsed.Time())
}
