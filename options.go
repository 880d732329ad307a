package forall

import "github.com/gogpu/forall/device"

// Option configures a single dispatch call.
// Use functional options to customize dispatch behavior.
//
// Example:
//
//	// Dispatch on an explicit device instead of the default.
//	err := forall.Forall(policy, domain, body, forall.WithDevice(dev))
type Option func(*dispatchConfig)

// dispatchConfig holds optional configuration for one dispatch.
type dispatchConfig struct {
	device device.Device
	scope  Scope
}

// newDispatchConfig applies options over the defaults: the shared
// default device and the process-wide fault-tolerance scope.
func newDispatchConfig(opts []Option) (*dispatchConfig, error) {
	cfg := &dispatchConfig{scope: activeScope()}
	for _, o := range opts {
		o(cfg)
	}
	if cfg.device == nil {
		d, err := device.Default()
		if err != nil {
			return nil, err
		}
		cfg.device = d
	}
	return cfg, nil
}

// WithDevice dispatches on d instead of the default device.
func WithDevice(d device.Device) Option {
	return func(cfg *dispatchConfig) {
		cfg.device = d
	}
}

// WithScope brackets the dispatch with s instead of the process-wide
// scope installed by SetScope.
func WithScope(s Scope) Option {
	return func(cfg *dispatchConfig) {
		if s != nil {
			cfg.scope = s
		}
	}
}
