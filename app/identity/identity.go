// Package identity mints stable content-addressable identifiers for
// posts, replies, authors and categories.
package identity

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Derive returns the identifier for a natural key within a namespace:
// the hex form of the first 128 bits of a BLAKE3 digest over
// "namespace:key". The same inputs always produce the same id, distinct
// namespaces keep entity kinds from colliding even when natural keys
// coincide.
func Derive(namespace, key string) string {
	sum := blake3.Sum256([]byte(namespace + ":" + key))
	return hex.EncodeToString(sum[:16])
}
