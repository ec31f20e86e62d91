package retouchjob

import (
	"sync"

	"server/internal/domain"
)

// statusCache is a process-local, concurrency-safe status map. It is a pure
// latency optimization: the durable record always wins once it exists.
type statusCache struct {
	mu       sync.RWMutex
	statuses map[string]domain.JobStatus
}

func newStatusCache() *statusCache {
	return &statusCache{statuses: make(map[string]domain.JobStatus)}
}

func (c *statusCache) set(jobID string, status domain.JobStatus) {
	c.mu.Lock()
	c.statuses[jobID] = status
	c.mu.Unlock()
}

func (c *statusCache) get(jobID string) (domain.JobStatus, bool) {
	c.mu.RLock()
	status, ok := c.statuses[jobID]
	c.mu.RUnlock()
	return status, ok
}
