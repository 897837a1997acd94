package services

import "sync"

// eventLocks hands out one mutex per event ID. Entries are dropped once no caller holds or
// waits on them. The zero value is ready to use.
type eventLocks struct {
	mu    sync.Mutex
	locks map[string]*eventLock
}

type eventLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until the event's mutex is held and returns the matching unlock.
func (l *eventLocks) lock(eventID string) (unlock func()) {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = map[string]*eventLock{}
	}
	e := l.locks[eventID]
	if e == nil {
		e = &eventLock{}
		l.locks[eventID] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, eventID)
		}
		l.mu.Unlock()
	}
}
