package api

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashValueIsDeterministic(t *testing.T) {
	v1 := HashValue([]byte("hello"))
	v2 := HashValue([]byte("hello"))
	require.Equal(t, v1, v2, "HashValue must be deterministic")

	v3 := HashValue([]byte("world"))
	require.NotEqual(t, v1, v3, "distinct values must hash distinctly")
}
