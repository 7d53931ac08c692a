// Package digest implements the rolling content digest maintained across
// phases and surfaced on X-Request-Digest. It also serves as the default
// idempotency key.
package digest

import (
	"crypto/sha256"
	"encoding/hex"
	"hash"
)

// New allocates the rolling hash used by a stream's CallContext.Digest.
func New() hash.Hash {
	return sha256.New()
}

// UpdateRequestLine extends h with tenant, method, and path, in that order
// — the fixed prefix every digest chain starts with, computed at the
// request-headers phase.
func UpdateRequestLine(h hash.Hash, tenant, method, path string) {
	h.Write([]byte(tenant))
	h.Write([]byte(method))
	h.Write([]byte(path))
}

// UpdateBody extends h with a request or response body, computed at the
// body phase.
func UpdateBody(h hash.Hash, body []byte) {
	h.Write(body)
}

// HexDigest returns the current hex-encoded digest of h without resetting
// it, so later phases can keep extending the same rolling hash.
func HexDigest(h hash.Hash) string {
	return hex.EncodeToString(h.Sum(nil))
}
