package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	checker := NewDefaultPolicyChecker(nil, nil)

	t.Run("StrongPassword", func(t *testing.T) {
		err := checker.Validate("Str0ng!Pass", "alice@agency.gov")
		assert.NoError(t, err)
	})

	t.Run("TooShort", func(t *testing.T) {
		err := checker.Validate("S0r!t", "alice@agency.gov")
		assert.Error(t, err)
	})

	t.Run("MissingDigit", func(t *testing.T) {
		err := checker.Validate("Strong!Pass", "alice@agency.gov")
		assert.Error(t, err)
	})

	t.Run("MissingSpecialChar", func(t *testing.T) {
		err := checker.Validate("Str0ngPass", "alice@agency.gov")
		assert.Error(t, err)
	})

	t.Run("CommonPassword", func(t *testing.T) {
		relaxed := NewDefaultPolicyChecker(&Policy{MinLength: 5, DisallowCommonPwds: true}, nil)
		err := relaxed.Validate("Password", "alice@agency.gov")
		assert.Error(t, err)
	})

	t.Run("RepeatedChars", func(t *testing.T) {
		err := checker.Validate("Str0ng!Passsss", "alice@agency.gov")
		assert.Error(t, err)
	})
}

func TestValidateEmailDerived(t *testing.T) {
	relaxed := NewDefaultPolicyChecker(NoOpPolicy(), nil)

	t.Run("EqualsLocalPart", func(t *testing.T) {
		err := relaxed.Validate("alice.smith", "Alice.Smith@agency.gov")
		assert.Error(t, err)
	})

	t.Run("ContainsLocalPart", func(t *testing.T) {
		err := relaxed.Validate("xx-alice.smith-99", "alice.smith@agency.gov")
		assert.Error(t, err)
	})

	t.Run("ContainedInLocalPart", func(t *testing.T) {
		err := relaxed.Validate("lice.smit", "alice.smith@agency.gov")
		assert.Error(t, err)
	})

	t.Run("ShortLocalPartOnlyEquality", func(t *testing.T) {
		// "al" appears in many passwords; only exact match is rejected.
		assert.Error(t, relaxed.Validate("al", "al@agency.gov"))
		assert.NoError(t, relaxed.Validate("normally-fine", "al@agency.gov"))
	})

	t.Run("NoEmail", func(t *testing.T) {
		assert.NoError(t, relaxed.Validate("whatever", ""))
	})
}

func TestHashAndCheck(t *testing.T) {
	t.Run("RoundTrip", func(t *testing.T) {
		hashed, err := Hash("Str0ng!Pass")
		assert.NoError(t, err)
		assert.NotEmpty(t, hashed)

		ok, err := CheckHash("Str0ng!Pass", hashed)
		assert.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Mismatch", func(t *testing.T) {
		hashed, err := Hash("Str0ng!Pass")
		assert.NoError(t, err)

		ok, err := CheckHash("Wr0ng!Pass", hashed)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("EmptyInputs", func(t *testing.T) {
		_, err := Hash("")
		assert.Error(t, err)

		ok, err := CheckHash("", "")
		assert.Error(t, err)
		assert.False(t, ok)
	})

	t.Run("CorruptedHash", func(t *testing.T) {
		ok, err := CheckHash("Str0ng!Pass", "not-a-bcrypt-hash")
		assert.Error(t, err)
		assert.False(t, ok)
	})
}
