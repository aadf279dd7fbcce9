package service

import "sync"

// DeliveryLocks serializes read-modify-write cycles on a single delivery
// row, so a completion event and a fan-out edit cannot interleave a lost
// update. One instance is shared by the reconciler and the fan-out engine.
type DeliveryLocks struct {
	mu    sync.Mutex
	locks map[int]*sync.Mutex
}

func NewDeliveryLocks() *DeliveryLocks {
	return &DeliveryLocks{locks: make(map[int]*sync.Mutex)}
}

func (l *DeliveryLocks) Lock(deliveryID int) {
	l.get(deliveryID).Lock()
}

func (l *DeliveryLocks) Unlock(deliveryID int) {
	l.get(deliveryID).Unlock()
}

func (l *DeliveryLocks) get(deliveryID int) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	m, ok := l.locks[deliveryID]
	if !ok {
		m = &sync.Mutex{}
		l.locks[deliveryID] = m
	}
	return m
}
