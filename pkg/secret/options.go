package secret

import (
	"log/slog"

	"example.com/cryptkeeper/pkg/atrest"
)

type config struct {
	poolSize     int
	logger       *slog.Logger
	protector    atrest.Protector
	binaryLength int
	binary       bool
}

// Option configures a Secret at construction.
type Option func(*config)

func newConfig(opts []Option) config {
	cfg := config{
		logger:    slog.Default(),
		protector: atrest.EnclaveProtector,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	if cfg.poolSize < 0 {
		cfg.poolSize = 0
	}
	return cfg
}

// WithPoolSize sets how many slots each of the secret's two pools keeps for
// reuse. The default, 0, gives every use a transient slot.
func WithPoolSize(n int) Option {
	return func(c *config) { c.poolSize = n }
}

// WithLogger sets the logger for lifecycle and pool events. Secret content
// is never logged.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithProtector sets the store factory used by FromBytes and FromText.
func WithProtector(p atrest.Protector) Option {
	return func(c *config) {
		if p != nil {
			c.protector = p
		}
	}
}

// WithBinaryLength tells FromProtectedValue that the adopted store holds a
// codec-packed payload of n bytes rather than text.
func WithBinaryLength(n int) Option {
	return func(c *config) {
		c.binaryLength = n
		c.binary = true
	}
}
