package keygen

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// maxAttempts bounds the uniqueness retry loop. Collisions over 8 random bytes
// are astronomically unlikely; exhaustion indicates a broken store, not bad luck.
const maxAttempts = 10

// ErrExhausted is returned when every generation attempt collided with a
// stored key.
var ErrExhausted = errors.New("keygen: exhausted unique key attempts")

// Exists reports whether a candidate key is already taken in the store.
type Exists func(key string) (bool, error)

// Generator produces license keys of the form LABEL-XXXX-XXXX-XXXX-XXXX,
// upper-case hex grouped for legibility. Keys stay well under 40 characters.
type Generator struct {
	label string
}

// New constructs a generator with the given decorative label token. The label
// is sanitized to at most 10 upper-case alphanumerics; an empty or unusable
// label falls back to "KEY".
func New(label string) Generator {
	return Generator{label: sanitizeLabel(label)}
}

// Generate draws random keys until one is unused, consulting exists on every
// attempt.
func (g Generator) Generate(exists Exists) (string, error) {
	for attempt := 0; attempt < maxAttempts; attempt++ {
		key, err := g.draw()
		if err != nil {
			return "", err
		}
		taken, err := exists(key)
		if err != nil {
			return "", err
		}
		if !taken {
			return key, nil
		}
	}
	return "", ErrExhausted
}

func (g Generator) draw() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("keygen: %w", err)
	}
	raw := strings.ToUpper(hex.EncodeToString(b))
	parts := make([]string, 0, 5)
	parts = append(parts, g.label)
	for i := 0; i < len(raw); i += 4 {
		parts = append(parts, raw[i:i+4])
	}
	return strings.Join(parts, "-"), nil
}

func sanitizeLabel(label string) string {
	cleaned := make([]rune, 0, len(label))
	for _, r := range strings.ToUpper(strings.TrimSpace(label)) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			cleaned = append(cleaned, r)
		}
	}
	if len(cleaned) == 0 {
		return "KEY"
	}
	if len(cleaned) > 10 {
		cleaned = cleaned[:10]
	}
	return string(cleaned)
}
