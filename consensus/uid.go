package consensus

import (
	"sync/atomic"
)

type UidGenerator interface {
	Next() int64
	// Observe makes every later Next return a value greater than seen.
	Observe(seen int64)
}

type NaiveUidGenerator struct {
	next atomic.Int64
}

func NewNaiveUidGenerator() *NaiveUidGenerator {
	generator := &NaiveUidGenerator{next: atomic.Int64{}}
	return generator
}

func (g *NaiveUidGenerator) Next() int64 {
	return g.next.Add(1)
}

func (g *NaiveUidGenerator) Observe(seen int64) {
	for {
		current := g.next.Load()
		if current >= seen || g.next.CompareAndSwap(current, seen) {
			return
		}
	}
}
