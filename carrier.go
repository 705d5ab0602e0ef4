package prefsync

import "sync"

// MemoryCarrier is a Carrier backed by a map. It stands in for a cookie jar
// in tests and in command-line tools that have no HTTP request.
type MemoryCarrier struct {
	mu     sync.RWMutex
	values map[string]string
	writes int
}

// NewMemoryCarrier returns a carrier preloaded with values, which may be nil.
func NewMemoryCarrier(values map[string]string) *MemoryCarrier {
	c := &MemoryCarrier{values: make(map[string]string, len(values))}
	for k, v := range values {
		c.values[k] = v
	}
	return c
}

func (c *MemoryCarrier) Read(name string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[name]
	return v, ok
}

func (c *MemoryCarrier) Write(name, value string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[name] = value
	c.writes++
	return nil
}

func (c *MemoryCarrier) Clear(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, name)
	c.writes++
}

// Writes reports how many Write and Clear calls the carrier has seen.
func (c *MemoryCarrier) Writes() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.writes
}
