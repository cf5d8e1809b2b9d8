package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestStagingIdentityHelpers(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("Consumed", func(t *testing.T) {
		staging := StagingIdentity{ExpiresAt: now.Add(time.Hour)}
		assert.False(t, staging.Consumed())

		consumedAt := now
		staging.ConsumedAt = &consumedAt
		assert.True(t, staging.Consumed())
	})

	t.Run("ExpiredAtBoundary", func(t *testing.T) {
		staging := StagingIdentity{ExpiresAt: now}
		assert.False(t, staging.Expired(now.Add(-time.Second)))
		assert.True(t, staging.Expired(now))
		assert.True(t, staging.Expired(now.Add(time.Second)))
	})
}
