package clr

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Option configures Open and Read.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used while reading. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func buildOptions(opts []Option) options {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// BuilderOption configures NewBuilder.
type BuilderOption func(*Builder)

// BuilderWithLogger sets the logger used by Bake.
func BuilderWithLogger(l *zap.Logger) BuilderOption {
	return func(b *Builder) {
		if l != nil {
			b.log = l
		}
	}
}

// BuilderWithMVID fixes the module version id instead of generating one.
func BuilderWithMVID(id uuid.UUID) BuilderOption {
	return func(b *Builder) { b.mvid = id }
}

// BuilderWithVersion sets the runtime version string of the metadata root.
func BuilderWithVersion(v string) BuilderOption {
	return func(b *Builder) { b.version = v }
}
