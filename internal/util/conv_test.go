package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	id, err := ParseID("42")
	require.NoError(t, err)
	assert.Equal(t, uint(42), id)

	id, err = ParseID("4294967296")
	require.NoError(t, err)
	assert.Equal(t, uint(4294967296), id)

	for _, in := range []string{"", "abc", "-1", "0", "18446744073709551616"} {
		_, err := ParseID(in)
		assert.ErrorIs(t, err, ErrInvalidID, in)
	}
}
