package publisher

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownDriver = errors.New("publisher: unknown driver")

type ClientConfig struct {
	Brokers  []string
	ClientID string
	// OnError receives delivery failures reported after Publish returned.
	OnError func(error)
}

type Factory func(ClientConfig) (Client, error)

var (
	factoriesMu sync.RWMutex
	factories   = map[string]Factory{}
)

// Register makes a client driver available by name. Registering the same name
// twice replaces the previous factory.
func Register(name string, f Factory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()
	factories[name] = f
}

func Drivers() []string {
	factoriesMu.RLock()
	defer factoriesMu.RUnlock()
	out := make([]string, 0, len(factories))
	for name := range factories {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Dial creates a client with the named driver.
func Dial(driver string, cfg ClientConfig) (Client, error) {
	factoriesMu.RLock()
	f, ok := factories[driver]
	factoriesMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (have %v)", ErrUnknownDriver, driver, Drivers())
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return f(cfg)
}
