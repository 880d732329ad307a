package device

import (
	"errors"
	"fmt"
	"sync"
)

// Factory creates a new device instance.
type Factory func() (Device, error)

// registry holds registered device factories.
var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// Priority order for default device selection (first available wins).
	// The host-emulated device is the fallback and is always available.
	devicePriority = []string{"webgpu", "emulated"}

	defaultMu  sync.Mutex
	defaultDev Device
)

// Register registers a device factory under the given name.
// This is typically called from init() functions in device packages.
// Registering an existing name replaces the previous factory.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Registered returns the names of all registered devices.
func Registered() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// Open creates a new device instance by name.
func Open(name string) (Device, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotRegistered, name)
	}
	return f()
}

// Default returns the shared default device, opening it on first use.
// Devices are tried in priority order; the host-emulated device is the
// last resort and always succeeds.
func Default() (Device, error) {
	defaultMu.Lock()
	defer defaultMu.Unlock()

	if defaultDev != nil {
		return defaultDev, nil
	}
	var firstErr error
	for _, name := range devicePriority {
		d, err := Open(name)
		if err != nil {
			if firstErr == nil && !errors.Is(err, ErrNotRegistered) {
				firstErr = err
			}
			continue
		}
		defaultDev = d
		return d, nil
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return nil, fmt.Errorf("%w: no device available", ErrNotRegistered)
}

// CurrentDefault returns the shared default device if one has already
// been opened, without opening one.
func CurrentDefault() (Device, bool) {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return defaultDev, defaultDev != nil
}

// SetDefault opens the named device and installs it as the shared
// default, closing the previous default if it differs from the shared
// host device.
func SetDefault(name string) error {
	d, err := Open(name)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	old := defaultDev
	defaultDev = d
	defaultMu.Unlock()
	if old != nil && old != Host() {
		_ = old.Close()
	}
	return nil
}

// resetDefault clears the cached default device. Used by tests.
func resetDefault() {
	defaultMu.Lock()
	defaultDev = nil
	defaultMu.Unlock()
}
