package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/plcoste/syndic/internal/domain"
)

// DefaultLockWait bounds how long a writer waits for a building's lock
// before giving up with domain.ErrBusy.
const DefaultLockWait = 250 * time.Millisecond

// buildingLocks hands out one channel-based mutex per building. Channel
// mutexes allow a timed acquisition, which sync.Mutex does not.
type buildingLocks struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
	wait  time.Duration
}

func newBuildingLocks(wait time.Duration) *buildingLocks {
	if wait <= 0 {
		wait = DefaultLockWait
	}
	return &buildingLocks{
		locks: make(map[string]chan struct{}),
		wait:  wait,
	}
}

func (l *buildingLocks) lockChan(buildingID string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()

	ch, exists := l.locks[buildingID]
	if !exists {
		ch = make(chan struct{}, 1)
		l.locks[buildingID] = ch
	}
	return ch
}

// acquire takes the building's lock, waiting at most the configured bound.
func (l *buildingLocks) acquire(ctx context.Context, buildingID string) (func(), error) {
	ch := l.lockChan(buildingID)

	timer := time.NewTimer(l.wait)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: building %s", domain.ErrBusy, buildingID)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
