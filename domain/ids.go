package domain

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"
)

// IDGenerator hands out identifiers for new users, departments and tasks.
type IDGenerator interface {
	NewID() string
}

// UUIDGenerator produces random UUIDv4 strings.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// SequenceGenerator produces monotonically increasing ids such as "t-1",
// "t-2". Safe for concurrent use.
type SequenceGenerator struct {
	Prefix string
	last   atomic.Int64
}

func (g *SequenceGenerator) NewID() string {
	n := strconv.FormatInt(g.last.Add(1), 10)
	if g.Prefix == "" {
		return n
	}
	return g.Prefix + "-" + n
}
