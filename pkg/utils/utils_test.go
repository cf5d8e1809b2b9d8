package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRandomString(t *testing.T) {
	t.Run("Length", func(t *testing.T) {
		assert.Len(t, GenerateRandomString(32), 32)
		assert.Len(t, GenerateRandomString(0), 0)
	})

	t.Run("Distinct", func(t *testing.T) {
		a := GenerateRandomString(32)
		b := GenerateRandomString(32)
		assert.NotEqual(t, a, b, "two generated tokens should not collide")
	})
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@agency.gov", NormalizeEmail("  Alice@Agency.GOV "))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestEmailLocalPart(t *testing.T) {
	assert.Equal(t, "alice.smith", EmailLocalPart("Alice.Smith@agency.gov"))
	assert.Equal(t, "noatsign", EmailLocalPart("NoAtSign"))
}
