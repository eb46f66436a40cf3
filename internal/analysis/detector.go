package analysis

// Pass is one resolver step over the working stream.
type Pass interface {
	// Name identifies the pass in debug logs.
	Name() string
	// Apply mutates the labels and notes of r's working stream.
	Apply(r *Resolver)
}

// PassChain runs passes in order.
type PassChain struct {
	passes []Pass
}

// NewPassChain creates a chain from passes.
func NewPassChain(passes ...Pass) *PassChain {
	return &PassChain{
		passes: passes,
	}
}

// Apply runs all passes in sequence
func (pc *PassChain) Apply(r *Resolver) {
	for _, p := range pc.passes {
		r.log.Debug("pass", "name", p.Name(), "insts", len(r.stream))
		p.Apply(r)
	}
}

type passFunc struct {
	name string
	fn   func(r *Resolver)
}

func (p passFunc) Name() string      { return p.name }
func (p passFunc) Apply(r *Resolver) { p.fn(r) }
