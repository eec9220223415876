package cache

import (
	"fmt"
	"sync"
	"time"
)

// Invalidator is a registry of cache invalidation triggers.
//
// Components that must not hold store references register closures over
// Store operations (Clear, ExpireAll, pattern Invalidate) and fire them
// all at once.
type Invalidator struct {
	sync.Mutex

	// SkipInterval defines minimal duration between two invalidations
	// (flood protection), default 15s.
	SkipInterval time.Duration

	// Callbacks contains a list of functions to call on invalidate.
	Callbacks []func()

	lastRun time.Time
}

// Invalidate triggers all registered callbacks.
//
// A second trigger within SkipInterval fails with ErrAlreadyInvalidated.
func (i *Invalidator) Invalidate() error {
	if i.Callbacks == nil {
		return ErrNothingToInvalidate
	}

	i.Lock()
	defer i.Unlock()

	if i.SkipInterval == 0 {
		i.SkipInterval = 15 * time.Second
	}

	if time.Since(i.lastRun) < i.SkipInterval {
		return fmt.Errorf("%w at %s, %s did not pass",
			ErrAlreadyInvalidated, i.lastRun.String(), i.SkipInterval.String())
	}

	i.lastRun = time.Now()
	for _, cb := range i.Callbacks {
		cb()
	}

	return nil
}
