package keygen

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/require"
)

var keyPattern = regexp.MustCompile(`^[A-Z0-9]{1,10}(-[0-9A-F]{4}){4}$`)

func neverExists(string) (bool, error) { return false, nil }

func TestGenerateFormat(t *testing.T) {
	gen := New("PBM")
	key, err := gen.Generate(neverExists)
	require.NoError(t, err)
	require.Regexp(t, keyPattern, key)
	require.LessOrEqual(t, len(key), 40)
}

func TestGenerateLabelSanitized(t *testing.T) {
	cases := map[string]string{
		"pb macro!":                "PBMACRO",
		"":                         "KEY",
		"  ---  ":                  "KEY",
		"averyverylonglabelindeed": "AVERYVERYL",
	}
	for label, wantPrefix := range cases {
		key, err := New(label).Generate(neverExists)
		require.NoError(t, err)
		require.Regexp(t, "^"+wantPrefix+"-", key)
		require.LessOrEqual(t, len(key), 40)
	}
}

func TestGenerateRetriesOnCollision(t *testing.T) {
	seen := map[string]bool{}
	collisions := 3
	exists := func(key string) (bool, error) {
		if collisions > 0 {
			collisions--
			seen[key] = true
			return true, nil
		}
		return false, nil
	}

	key, err := New("PBM").Generate(exists)
	require.NoError(t, err)
	require.False(t, seen[key])
	require.Zero(t, collisions)
}

func TestGenerateExhaustion(t *testing.T) {
	alwaysTaken := func(string) (bool, error) { return true, nil }
	_, err := New("PBM").Generate(alwaysTaken)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestGenerateUnique(t *testing.T) {
	gen := New("PBM")
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		key, err := gen.Generate(neverExists)
		require.NoError(t, err)
		require.False(t, seen[key], "duplicate key %s", key)
		seen[key] = true
	}
}
