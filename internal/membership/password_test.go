package membership

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"pgregory.net/rapid"
)

func TestHashPasswordFormat(t *testing.T) {
	hash, err := hashPassword("secret123")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, argonPrefix))

	other, err := hashPassword("secret123")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "salts must differ")
}

func TestVerifyPasswordRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		password := rapid.StringN(1, 32, -1).Draw(t, "password")
		other := rapid.StringN(1, 32, -1).Draw(t, "other")

		hash, err := hashPassword(password)
		if err != nil {
			t.Fatal(err)
		}

		ok, err := verifyPassword(password, hash)
		if err != nil || !ok {
			t.Fatalf("password did not verify: ok=%v err=%v", ok, err)
		}

		ok, err = verifyPassword(other, hash)
		if err != nil {
			t.Fatal(err)
		}
		if ok != (other == password) {
			t.Fatalf("verify(%q) against hash of %q = %v", other, password, ok)
		}
	})
}

func TestVerifyLegacyBcrypt(t *testing.T) {
	legacy, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)

	ok, err := verifyPassword("secret123", string(legacy))
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = verifyPassword("wrong", string(legacy))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyUnknownFormat(t *testing.T) {
	_, err := verifyPassword("x", "plaintext")
	assert.ErrorIs(t, err, errUnknownHash)

	_, err = verifyPassword("x", argonPrefix+"no-separator")
	assert.ErrorIs(t, err, errUnknownHash)
}
