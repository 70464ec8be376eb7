package fingerprint

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Hasher derives deterministic one-way digests of client hardware identifiers.
// The digest is an equality-testing primitive, not a security commitment: the
// same hardware string always yields the same fingerprint.
type Hasher struct {
	salt []byte
}

// NewHasher constructs a hasher with the provided salt bytes. An empty salt is
// valid; the salt only namespaces fingerprints between deployments.
func NewHasher(salt []byte) Hasher {
	return Hasher{salt: append([]byte(nil), salt...)}
}

// Hash digests the given hardware identifier using HMAC-SHA256 and returns a
// lowercase hex string. Surrounding whitespace is not significant.
func (h Hasher) Hash(hwid string) string {
	mac := hmac.New(sha256.New, h.salt)
	mac.Write([]byte(strings.TrimSpace(hwid)))
	return hex.EncodeToString(mac.Sum(nil))
}
