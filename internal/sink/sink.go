// Package sink implements the VRT outputs of the bridge.
package sink

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"firestige.xyz/vrtbridge/internal/config"
	"firestige.xyz/vrtbridge/internal/core"
)

// Sink writes encoded VRT packets to a transport. Write is called from a
// single goroutine; Close is safe after a failed Open.
type Sink interface {
	Open(ctx context.Context) error
	Write(frame core.Frame) error
	Close() error
	String() string
}

// Factory builds a sink from its decoded option map.
type Factory func(opts map[string]any) (Sink, error)

var (
	registryMu sync.RWMutex
	registry   = make(map[string]Factory)
)

// Register makes a sink type available to New. Registering a name twice
// replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Names lists the registered sink types.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// New builds the sink selected by cfg.Type.
func New(cfg config.VRTOutputConfig) (Sink, error) {
	registryMu.RLock()
	factory, ok := registry[cfg.Type]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", core.ErrUnsupportedOutput, cfg.Type)
	}
	return factory(cfg.Options)
}

func decode(name string, in map[string]any, out any) error {
	return config.DecodeOptions("vrt_output."+name, in, out)
}
