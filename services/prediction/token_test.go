package prediction

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTokenFormat(t *testing.T) {
	seen := make(map[string]bool)

	for i := 0; i < 200; i++ {
		token := NewToken()
		require.Len(t, token, 36)

		for _, idx := range []int{8, 13, 18, 23} {
			assert.Equal(t, byte('-'), token[idx], "dash expected at index %d in %s", idx, token)
		}
		assert.Equal(t, byte('4'), token[14], "version nibble in %s", token)
		assert.Contains(t, "89ab", string(token[19]), "variant nibble in %s", token)

		assert.False(t, seen[token], "duplicate token %s", token)
		seen[token] = true
	}
}

func TestNewShortID(t *testing.T) {
	id := NewShortID(8)
	require.Len(t, id, 8)
	for _, c := range id {
		assert.True(t, strings.ContainsRune(idAlphabet, c), "unexpected character %q", c)
	}

	assert.NotEqual(t, NewShortID(8), NewShortID(8))
}
