package fingerprint

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHashDeterministic(t *testing.T) {
	h := NewHasher([]byte("salt"))
	require.Equal(t, h.Hash("machine-1"), h.Hash("machine-1"))
	require.NotEqual(t, h.Hash("machine-1"), h.Hash("machine-2"))
}

func TestHashIgnoresSurroundingWhitespace(t *testing.T) {
	h := NewHasher(nil)
	require.Equal(t, h.Hash("machine-1"), h.Hash("  machine-1\n"))
}

func TestHashSaltNamespaces(t *testing.T) {
	a := NewHasher([]byte("deploy-a"))
	b := NewHasher([]byte("deploy-b"))
	require.NotEqual(t, a.Hash("machine-1"), b.Hash("machine-1"))
}

func TestHashShape(t *testing.T) {
	h := NewHasher([]byte("salt"))
	require.Regexp(t, regexp.MustCompile(`^[0-9a-f]{64}$`), h.Hash("machine-1"))
}
