// AngelaMos | 2026
// security_test.go

package core

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$"))

	ok, rehash, err := CheckPassword("correct horse battery", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rehash)

	ok, _, err = CheckPassword("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCheckPasswordRehashesOutdatedCosts(t *testing.T) {
	weak := PasswordParams{Memory: 8 * 1024, Iterations: 1, Threads: 1, KeyLen: 32, SaltLen: 16}
	hash, err := hashPassword("s3cret-pass", weak)
	require.NoError(t, err)

	ok, rehash, err := CheckPassword("s3cret-pass", hash)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NotEmpty(t, rehash)

	h, err := parseHash(rehash)
	require.NoError(t, err)
	assert.False(t, h.outdated())
}

func TestCheckPasswordMalformed(t *testing.T) {
	for _, encoded := range []string{
		"",
		"plaintext",
		"$argon2i$v=19$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=1,t=1,p=1$c2FsdA",
		"$argon2id$v=18$m=1,t=1,p=1$c2FsdA$a2V5",
		"$argon2id$v=19$m=x,t=1,p=1$c2FsdA$a2V5",
	} {
		_, _, err := CheckPassword("pw", encoded)
		assert.ErrorIs(t, err, ErrMalformedHash, encoded)
	}
}

func TestCheckPasswordConstantTimeWithoutHash(t *testing.T) {
	ok, rehash, err := CheckPasswordConstantTime("anything", "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, rehash)
}

func TestOpaqueTokens(t *testing.T) {
	a, err := NewOpaqueToken(32)
	require.NoError(t, err)
	b, err := NewOpaqueToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 43)
	assert.NotEqual(t, a, b)

	hash := HashToken(a)
	assert.Len(t, hash, 64)
	assert.True(t, TokenMatches(a, hash))
	assert.False(t, TokenMatches(b, hash))
}
