package retouchjob

import "sync"

// jobLocks hands out one mutex per job id so concurrent processing attempts
// for the same job serialize instead of racing on status and artifacts.
// Attempts for different jobs never contend.
type jobLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newJobLocks() *jobLocks {
	return &jobLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *jobLocks) lock(jobID string) *sync.Mutex {
	l.mu.Lock()
	m, ok := l.locks[jobID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[jobID] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m
}
