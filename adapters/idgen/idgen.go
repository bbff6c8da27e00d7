// Package idgen provides identifier generators. Operation contexts carry a
// UUID trace id; tests use Sequential for stable values.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/artpar/apigen/ports"
	"github.com/google/uuid"
)

// UUID generates random v4 UUIDs.
type UUID struct{}

// New returns a new UUID string.
func (UUID) New() string {
	return uuid.NewString()
}

var _ ports.IDGenerator = UUID{}

// Sequential generates prefix1, prefix2, ... Safe for concurrent use.
type Sequential struct {
	prefix  string
	counter atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.counter.Add(1), 10)
}

var _ ports.IDGenerator = (*Sequential)(nil)
