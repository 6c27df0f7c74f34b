package tracefs

import "testing"

func TestNewDescriptorConfigDefaults(t *testing.T) {
	cfg := newDescriptorConfig(nil)
	if cfg.logger == nil {
		t.Fatal("expected default noop logger")
	}
	if _, ok := cfg.logger.(noopLogger); !ok {
		t.Fatalf("expected noopLogger default, got %T", cfg.logger)
	}
}

func TestWithLoggerOption(t *testing.T) {
	custom := NewLogrusLogger(nil)
	cfg := newDescriptorConfig([]Option{WithLogger(custom)})
	if cfg.logger != custom {
		t.Fatal("expected WithLogger to override default")
	}
}

func TestWithLoggerNilIsIgnored(t *testing.T) {
	cfg := newDescriptorConfig([]Option{WithLogger(nil)})
	if _, ok := cfg.logger.(noopLogger); !ok {
		t.Fatal("expected nil WithLogger to leave default noop logger")
	}
}

func TestWithEntropySourceOption(t *testing.T) {
	e := fixedEntropy(3)
	cfg := newDescriptorConfig([]Option{WithEntropySource(e)})
	if cfg.entropy != e {
		t.Fatal("expected WithEntropySource to set entropy")
	}
}
