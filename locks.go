package goSession

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// stripedLocks maps keys onto a fixed set of mutexes. Two keys may share a
// stripe; that only costs contention, never correctness.
type stripedLocks struct {
	stripes [lockStripes]sync.Mutex
}

func (l *stripedLocks) lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	mu := &l.stripes[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}
