package indexer

import (
	"sync"

	"github.com/medialib/scenesearch/pkg/types"
)

type mediaKey struct {
	id int64
	mt types.MediaType
}

// mediaLocks hands out non-blocking per-media locks so two goroutines
// never index the same media item concurrently.
type mediaLocks struct {
	mu     sync.Mutex
	locked map[mediaKey]bool
}

func newMediaLocks() *mediaLocks {
	return &mediaLocks{locked: make(map[mediaKey]bool)}
}

// tryAcquire attempts to lock a media item without blocking.
func (l *mediaLocks) tryAcquire(id int64, mt types.MediaType) bool {
	key := mediaKey{id: id, mt: mt}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.locked[key] {
		return false
	}
	l.locked[key] = true
	return true
}

// release unlocks a media item. Must follow a successful tryAcquire.
func (l *mediaLocks) release(id int64, mt types.MediaType) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.locked, mediaKey{id: id, mt: mt})
}
