// Package ports defines the infrastructure contracts the engine depends on.
// Implementations live in adapters/.
package ports

import "time"

// Clock abstracts time so token expiry and record timestamps are testable.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates opaque identifiers such as operation trace ids.
type IDGenerator interface {
	New() string
}

// Hasher hashes and verifies passwords. Hashes are stored as strings on
// user records.
type Hasher interface {
	// Hash returns the encoded hash of plaintext.
	Hash(plaintext string) (string, error)

	// Compare reports whether plaintext matches hash.
	Compare(hash, plaintext string) bool
}
