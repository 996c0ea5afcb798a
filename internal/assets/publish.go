package assets

import (
	"os"
	"sync"
)

// EnvKey is the configuration key carrying the cache directory.
const EnvKey = "NNUE_DIR"

// Publisher exposes the resolved cache directory to the engine's
// configuration surface.
type Publisher interface {
	Publish(key, value string) error
}

// EnvPublisher publishes into the process environment.
type EnvPublisher struct{}

// Publish implements Publisher.
func (EnvPublisher) Publish(key, value string) error {
	return os.Setenv(key, value)
}

// MapPublisher records published values in memory.
type MapPublisher struct {
	mu     sync.Mutex
	values map[string]string
}

// Publish implements Publisher.
func (m *MapPublisher) Publish(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[key] = value
	return nil
}

// Get returns the value published under key.
func (m *MapPublisher) Get(key string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok
}
