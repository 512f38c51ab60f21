package merge

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// courseLocks hands out one exclusive slot per course. Waiting respects the
// context so a queued import can still be abandoned before it starts merging.
// A slot is dropped once nobody holds or waits for it.
type courseLocks struct {
	mu    sync.Mutex
	slots map[uuid.UUID]*courseSlot
}

type courseSlot struct {
	ch   chan struct{}
	refs int // holders plus waiters
}

func newCourseLocks() *courseLocks {
	return &courseLocks{slots: make(map[uuid.UUID]*courseSlot)}
}

func (l *courseLocks) join(courseID uuid.UUID) *courseSlot {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[courseID]
	if !ok {
		s = &courseSlot{ch: make(chan struct{}, 1)}
		l.slots[courseID] = s
	}
	s.refs++
	return s
}

func (l *courseLocks) leave(courseID uuid.UUID, s *courseSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, courseID)
	}
}

func (l *courseLocks) acquire(ctx context.Context, courseID uuid.UUID) (func(), error) {
	s := l.join(courseID)
	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.leave(courseID, s)
		}, nil
	case <-ctx.Done():
		l.leave(courseID, s)
		return nil, ctx.Err()
	}
}
