package com

import "sync"

// Map defines a concurrent-safe map structure.
type Map[K comparable, V any] struct {
	m  map[K]V
	mu sync.Mutex
}

func NewMap[K comparable, V any]() Map[K, V] {
	return Map[K, V]{m: make(map[K]V, 10)}
}

func (m *Map[K, V]) Put(key K, v V) { m.mu.Lock(); m.m[key] = v; m.mu.Unlock() }

func (m *Map[K, V]) Find(key K) (v V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok = m.m[key]
	return
}

func (m *Map[K, V]) Remove(key K) { m.mu.Lock(); delete(m.m, key); m.mu.Unlock() }

// Pop removes and returns the value stored under the key, if any.
func (m *Map[K, V]) Pop(key K) (v V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok = m.m[key]
	delete(m.m, key)
	return
}

func (m *Map[K, V]) Len() int { m.mu.Lock(); defer m.mu.Unlock(); return len(m.m) }

// ForEach processes every element with the provided callback function.
func (m *Map[K, V]) ForEach(fn func(v V)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.m {
		fn(v)
	}
}
