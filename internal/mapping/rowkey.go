package mapping

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// RowKeyGenerator produces the row key of a log entity from its event time.
type RowKeyGenerator interface {
	Next(eventTime time.Time) string
}

// RandomRowKeys appends a random suffix in [0, 1000) to the event's Unix milliseconds.
// Two entries of one node in the same millisecond collide with probability 1/1000.
type RandomRowKeys struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomRowKeys draws suffixes from src, or from a randomly seeded PCG when src is nil.
func NewRandomRowKeys(src rand.Source) *RandomRowKeys {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &RandomRowKeys{rng: rand.New(src)}
}

func (g *RandomRowKeys) Next(eventTime time.Time) string {
	g.mu.Lock()
	n := g.rng.IntN(1000)
	g.mu.Unlock()
	return fmt.Sprintf("%d%04d", eventTime.UnixMilli(), n)
}

// SequenceRowKeys issues keys that never repeat within the process. The suffix counts
// keys issued in the current millisecond; once 10000 are used the next millisecond is
// borrowed. Event times older than the last issued key reuse its millisecond.
type SequenceRowKeys struct {
	mu     sync.Mutex
	millis int64
	seq    int
	issued bool
}

func NewSequenceRowKeys() *SequenceRowKeys {
	return &SequenceRowKeys{}
}

func (g *SequenceRowKeys) Next(eventTime time.Time) string {
	ms := eventTime.UnixMilli()

	g.mu.Lock()
	defer g.mu.Unlock()
	switch {
	case !g.issued || ms > g.millis:
		g.millis, g.seq, g.issued = ms, 0, true
	case g.seq == 9999:
		g.millis++
		g.seq = 0
	default:
		g.seq++
	}
	return fmt.Sprintf("%d%04d", g.millis, g.seq)
}
