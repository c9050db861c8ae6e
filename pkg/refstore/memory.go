package refstore

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Memory is the in-process RefStore adapter: a mutex-guarded map keyed
// by (name, namespace), matching spec.md §4.2's "in-process lock" row
// for both conflict detection and CAS.
type Memory struct {
	mu     sync.Mutex
	cells  map[string]string // CompositeKey -> fingerprint
	broker *Broker
}

// NewMemory returns an empty in-memory RefStore.
func NewMemory() *Memory {
	return &Memory{
		cells:  make(map[string]string),
		broker: NewBroker(),
	}
}

func (m *Memory) Get(_ context.Context, name, namespace string) (string, bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return "", false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fp, ok := m.cells[CompositeKey(name, namespace)]
	return fp, ok, nil
}

func (m *Memory) New(_ context.Context, name, namespace, fingerprint string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)

	m.mu.Lock()
	if _, exists := m.cells[key]; exists {
		m.mu.Unlock()
		return false, nil
	}
	m.cells[key] = fingerprint
	m.mu.Unlock()

	m.broker.Publish(name, namespace, nil, fingerprint)
	return true, nil
}

func (m *Memory) Update(_ context.Context, name, namespace, expected, desired string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)

	m.mu.Lock()
	current, exists := m.cells[key]
	if !exists || current != expected {
		m.mu.Unlock()
		return false, nil
	}
	m.cells[key] = desired
	m.mu.Unlock()

	old := expected
	m.broker.Publish(name, namespace, &old, desired)
	return true, nil
}

func (m *Memory) Delete(_ context.Context, name, namespace string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	key := CompositeKey(name, namespace)

	m.mu.Lock()
	old, exists := m.cells[key]
	if !exists {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.cells, key)
	m.mu.Unlock()

	m.broker.Publish(name, namespace, &old, "")
	return true, nil
}

func (m *Memory) Subscribe(name, namespace string, callback Callback) (uuid.UUID, error) {
	return m.broker.Subscribe(name, namespace, callback), nil
}

// SubscriptionCount returns the number of active subscriptions, for
// metrics collection.
func (m *Memory) SubscriptionCount() int {
	return m.broker.Count()
}

func (m *Memory) Unsubscribe(id uuid.UUID) bool {
	return m.broker.Unsubscribe(id)
}
