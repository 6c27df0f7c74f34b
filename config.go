package tracefs

// descriptorConfig carries the optional, rarely-changed collaborators a
// descriptor needs beyond the event(s) it binds: a logger and, for
// SyntheticDescriptor, an entropy source for argument-name generation.
// It is built from a variadic option list (the functional-options
// pattern).
type descriptorConfig struct {
	logger  Logger
	entropy EntropySource
}

// Option configures a HistogramDescriptor or SyntheticDescriptor at
// construction time.
type Option func(*descriptorConfig)

// WithLogger injects a Logger. Descriptors default to NewNoopLogger.
func WithLogger(l Logger) Option {
	return func(c *descriptorConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithEntropySource injects the randomness source used to salt
// generated argument names. Descriptors default to a UUID-backed
// source; tests should inject a deterministic one.
func WithEntropySource(e EntropySource) Option {
	return func(c *descriptorConfig) {
		if e != nil {
			c.entropy = e
		}
	}
}

func newDescriptorConfig(opts []Option) *descriptorConfig {
	c := &descriptorConfig{logger: NewNoopLogger()}
	for _, o := range opts {
		if o != nil {
			o(c)
		}
	}
	return c
}
