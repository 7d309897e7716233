package orchestrator

import "sync"

// taskLocks serializes the work on the same task inside one process, other
// processes are fenced by the conditional updates.
type taskLocks struct {
	mu    sync.Mutex
	locks map[string]*taskLock
}

type taskLock struct {
	mu   sync.Mutex
	refs int
}

func newTaskLocks() *taskLocks {
	return &taskLocks{locks: map[string]*taskLock{}}
}

func (l *taskLocks) acquire(id string) *taskLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl, ok := l.locks[id]
	if !ok {
		tl = &taskLock{}
		l.locks[id] = tl
	}
	tl.refs++
	return tl
}

func (l *taskLocks) release(id string, tl *taskLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tl.refs--
	if tl.refs == 0 {
		delete(l.locks, id)
	}
}

// lock blocks until the task is free and returns the unlock function.
func (l *taskLocks) lock(id string) func() {
	tl := l.acquire(id)
	tl.mu.Lock()
	return func() {
		tl.mu.Unlock()
		l.release(id, tl)
	}
}

// tryLock locks the task only if it's free.
func (l *taskLocks) tryLock(id string) (func(), bool) {
	tl := l.acquire(id)
	if !tl.mu.TryLock() {
		l.release(id, tl)
		return nil, false
	}
	return func() {
		tl.mu.Unlock()
		l.release(id, tl)
	}, true
}
