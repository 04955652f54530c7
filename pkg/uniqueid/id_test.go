package uniqueid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGenerateIsUniqueAndNonZero(t *testing.T) {
	a := Generate()
	b := Generate()
	require.NotEqual(t, Zero, a)
	require.NotEqual(t, a, b)
}

func TestIDUsableAsMapKey(t *testing.T) {
	m := map[ID]string{}
	id := From(1, 2)
	m[id] = "fragment-instance"
	got, ok := m[From(1, 2)]
	require.True(t, ok)
	require.Equal(t, "fragment-instance", got)
}

func TestLessTotalOrder(t *testing.T) {
	a := From(1, 5)
	b := From(1, 6)
	c := From(2, 0)
	require.True(t, a.Less(b))
	require.True(t, b.Less(c))
	require.False(t, c.Less(a))
}
