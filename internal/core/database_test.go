// AngelaMos | 2026
// database_test.go

package core

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJitterStaysWithinBounds(t *testing.T) {
	base := 30 * time.Minute

	for range 50 {
		got := jitter(base)
		assert.GreaterOrEqual(t, got, base)
		assert.Less(t, got, base+base/lifetimeJitterDivisor)
	}
}

func TestJitterTinyDurations(t *testing.T) {
	assert.Equal(t, time.Duration(0), jitter(0))
	assert.Equal(t, 3*time.Nanosecond, jitter(3))
}

func TestNilDatabaseClose(t *testing.T) {
	var d *Database
	assert.NoError(t, d.Close())
}
