// Package selfcheck generates self-checking stress functions: two
// value-identical computation chains run back to back from the same seed,
// compared every iteration. On healthy hardware the function always returns
// zero; any set bit in its result is a bit the two chains disagreed on.
package selfcheck

import (
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"github.com/dinhngtu/uvtester/abi"
	"github.com/dinhngtu/uvtester/chain"
	"github.com/dinhngtu/uvtester/isa"
	"github.com/dinhngtu/uvtester/jit"
	"github.com/dinhngtu/uvtester/kernel"
)

// ErrInvalidParameter reports a depth or pause depth outside its range.
var ErrInvalidParameter = kernel.ErrInvalidParameter

// Function is a generated self-check function.
type Function = abi.Function

// EmissionError wraps a failure of the emission facility. Generation
// parameters were valid; retrying will not help.
type EmissionError struct {
	Program string
	Err     error
}

func (e *EmissionError) Error() string {
	return fmt.Sprintf("emit %s: %v", e.Program, e.Err)
}

func (e *EmissionError) Unwrap() error {
	return e.Err
}

type options struct {
	target  abi.Target
	emitter abi.Emitter
	seed    *uint64
	logger  *zap.Logger
}

// Option configures generation.
type Option func(*options)

// WithTarget generates for t instead of the running host.
func WithTarget(t abi.Target) Option {
	return func(o *options) { o.target = t }
}

// WithEmitter finalizes programs with e instead of native code.
func WithEmitter(e abi.Emitter) Option {
	return func(o *options) { o.emitter = e }
}

// WithImmediateSeed fixes the seed of the RandomImmediateMultiply stream.
func WithImmediateSeed(seed uint64) Option {
	return func(o *options) { o.seed = &seed }
}

// WithLogger logs generated programs at debug level.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

func newOptions(opts []Option) *options {
	o := &options{
		target: abi.Host(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.emitter == nil {
		o.emitter = jit.NewEmitter()
	}
	return o
}

// Build validates the parameters and assembles the self-check program
// without emitting it.
func Build(kind kernel.Kind, depth, pauseDepth int, opts ...Option) (*isa.Program, error) {
	return build(kind, depth, pauseDepth, newOptions(opts))
}

func build(kind kernel.Kind, depth, pauseDepth int, o *options) (*isa.Program, error) {
	if err := chain.ValidatePause(pauseDepth); err != nil {
		return nil, err
	}
	seed := rand.Uint64()
	if o.seed != nil {
		seed = *o.seed
	}
	k, err := kernel.New(kind, depth, kernel.NewStream(seed))
	if err != nil {
		return nil, err
	}
	return chain.Assemble(k, pauseDepth, o.target.Convention)
}

// Generate builds and emits the self-check function for kind. Parameter
// errors wrap ErrInvalidParameter; emission failures are *EmissionError.
func Generate(kind kernel.Kind, depth, pauseDepth int, opts ...Option) (Function, error) {
	o := newOptions(opts)
	p, err := build(kind, depth, pauseDepth, o)
	if err != nil {
		return nil, err
	}
	o.logger.Debug("generated self-check program",
		zap.String("program", p.Name),
		zap.Int("instructions", len(p.Insts)),
		zap.Stringer("target", o.target))

	fn, err := o.emitter.Emit(p, o.target)
	if err != nil {
		return nil, &EmissionError{Program: p.Name, Err: err}
	}
	return fn, nil
}
