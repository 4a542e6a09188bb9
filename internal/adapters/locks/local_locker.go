package locks

import (
	"context"
	"fleet-route-engine/internal/ports"
	"sync"
)

// LocalLocker leases routes within one process. Use RedisLocker when several
// instances share a database.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Lock(_ context.Context, routeID string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.held[routeID]; busy {
		return nil, ports.ErrRouteBusy
	}
	l.held[routeID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, routeID)
			l.mu.Unlock()
		})
	}, nil
}
