package order

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewNumber_Format(t *testing.T) {
	n := NewNumber()

	require.True(t, strings.HasPrefix(n, "ORD-"), "got %q", n)
	parts := strings.Split(n, "-")
	require.Len(t, parts, 3)
	assert.NotEmpty(t, parts[1])
	assert.Len(t, parts[2], 8)
	assert.Equal(t, strings.ToUpper(n), n, "order numbers are uppercase")
}

func TestNewNumber_Unique(t *testing.T) {
	const draws = 10_000

	seen := make(map[string]struct{}, draws)
	for range draws {
		n := NewNumber()
		_, dup := seen[n]
		require.False(t, dup, "duplicate order number %q", n)
		seen[n] = struct{}{}
	}
}
