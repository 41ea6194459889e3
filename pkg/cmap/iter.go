package cmap

// SetIfAbsent sets the value only if the key does not exist.
// Returns true if the value was set, false if the key already exists.
func (m *Map[K, V]) SetIfAbsent(key K, value V) bool {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if _, ok := shard.items[key]; ok {
		return false
	}

	shard.items[key] = value
	return true
}

// Pop removes a key and returns its value.
// Returns the value and true if the key existed, zero value and false otherwise.
func (m *Map[K, V]) Pop(key K) (V, bool) {
	shard := m.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	val, ok := shard.items[key]
	if ok {
		delete(shard.items, key)
	}
	return val, ok
}

// Drain removes every item and returns them. Each shard is emptied under its
// own lock.
func (m *Map[K, V]) Drain() []V {
	var out []V
	for _, shard := range m.shards {
		shard.mu.Lock()
		for _, v := range shard.items {
			out = append(out, v)
		}
		shard.items = make(map[K]V)
		shard.mu.Unlock()
	}
	return out
}
