package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(hash, "$argon2id$"))

	match, err := ComparePassword("correct horse battery staple", hash)
	require.NoError(t, err)
	require.True(t, match)

	match, err = ComparePassword("wrong password", hash)
	require.NoError(t, err)
	require.False(t, match)
}

func TestPasswordHashesAreSalted(t *testing.T) {
	first, err := HashPassword("same password")
	require.NoError(t, err)
	second, err := HashPassword("same password")
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestComparePasswordMalformedHash(t *testing.T) {
	for _, bad := range []string{"", "plain", "$argon2id$v=19$m=65536,t=3,p=2$bad"} {
		_, err := ComparePassword("password", bad)
		require.Error(t, err)
	}
}
