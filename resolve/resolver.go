// Package resolve ties the type inference core together for one compilation unit: it keeps the table of
// named values and their types, takes the constraints generated while walking a program, applies the rules
// of the recognized operations, and finally resolves every value to its fully dereferenced type.
//
// A Resolver is fed in program order:
//
//	r := resolve.New(resolve.WithFile("vae.py"))
//	_ = r.BindValue("x", input)
//	_ = r.BindValue("$1", -1)
//	_ = r.BindValue("$2", 784)
//	_ = r.Apply(resolve.Node{Op: rules.OpTensorView, Line: 2, Inputs: []string{"x", "$1", "$2"}, Outputs: []string{"h"}})
//	...
//	types, err := r.Resolve()
//
// The first failure is fatal: types involved in the failed constraint may have been partially refined, so
// every later call fails with an error wrapping the first one.
package resolve

import (
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/shapeinfer/rules"
	"github.com/gomlx/shapeinfer/typing"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Resolver resolves the types of the named values of one compilation unit.
//
// It owns its typing.Unit, so the type variables of two resolvers never mix. A Resolver is not safe for
// concurrent use.
type Resolver struct {
	unit     *typing.Unit
	registry *rules.Registry
	file     string

	// values holds the entry of every named value, and order their declaration order.
	values map[string]*value
	order  []string

	// err is the first failure; once set, the resolver refuses further work.
	err error
}

// value is the entry of one named value.
type value struct {
	t          typing.Type
	pos        typing.Pos
	provenance Provenance

	// producer is the node whose output this value is, if any.
	producer *Node
}

// Option configures a Resolver.
type Option func(r *Resolver)

// WithRegistry sets the rule registry used by Apply. The default is rules.NewRegistry().
func WithRegistry(registry *rules.Registry) Option {
	return func(r *Resolver) { r.registry = registry }
}

// WithFile sets the file name reported in the origin of type variables and in errors.
func WithFile(file string) Option {
	return func(r *Resolver) { r.file = file }
}

// New creates a Resolver for a new compilation unit.
func New(options ...Option) *Resolver {
	r := &Resolver{
		unit:   typing.NewUnit(),
		values: make(map[string]*value),
	}
	for _, option := range options {
		option(r)
	}
	if r.registry == nil {
		r.registry = rules.NewRegistry()
	}
	return r
}

// Unit returns the compilation unit owning the type variables of the resolver.
func (r *Resolver) Unit() *typing.Unit { return r.unit }

// Err returns the first failure of the resolver, or nil.
func (r *Resolver) Err() error { return r.err }

// pos returns the position of line in the resolver file.
func (r *Resolver) pos(line int) typing.Pos {
	return typing.Pos{File: r.file, Line: line}
}

// failed returns the sticky error, if the resolver already failed.
func (r *Resolver) failed() error {
	if r.err == nil {
		return nil
	}
	return errors.WithMessage(r.err, "resolver already failed")
}

// fail records err as the resolver failure and returns it.
func (r *Resolver) fail(err error) error {
	r.err = err
	klog.V(1).Infof("resolve: %v", err)
	return err
}

// entry returns the entry of name, declaring it with a fresh type variable if needed.
func (r *Resolver) entry(name string, line int) *value {
	if v, found := r.values[name]; found {
		return v
	}
	pos := r.pos(line)
	v := &value{t: r.unit.NewVar(pos), pos: pos, provenance: ProvenanceDeclared}
	r.values[name] = v
	r.order = append(r.order, name)
	return v
}

// Declare makes name known, with a fresh type variable created at line, and returns its type. Declaring
// an already known name returns its current type.
func (r *Resolver) Declare(name string, line int) typing.Type {
	return r.entry(name, line).t
}

// Bind constrains the type of name to t, declaring name if needed.
func (r *Resolver) Bind(name string, t typing.Type) error {
	return r.bind(name, t, ProvenanceBound)
}

// BindValue constrains the type of name to the type of the concrete host value (see typing.Unit.Construct).
// A host value that has no type, such as an integer overflowing int, fails the resolver.
func (r *Resolver) BindValue(name string, hostValue any) error {
	if err := r.failed(); err != nil {
		return err
	}
	var t typing.Type
	if err := exceptions.TryCatch[error](func() { t = r.unit.Construct(hostValue) }); err != nil {
		return r.fail(errors.WithMessagef(err, "binding value of %q", name))
	}
	return r.bind(name, t, ProvenanceConstant)
}

// Reuse constrains the type of name to a copy of t, a type resolved elsewhere (possibly in another
// compilation unit). The copy keeps t itself from being refined by the constraints of this unit: its
// unbound variables are replaced by fresh variables of this unit.
func (r *Resolver) Reuse(name string, t typing.Type) error {
	return r.bind(name, r.unit.Copy(typing.Deref(t)), ProvenanceReused)
}

func (r *Resolver) bind(name string, t typing.Type, provenance Provenance) error {
	if err := r.failed(); err != nil {
		return err
	}
	v := r.entry(name, 0)
	if err := r.unit.Unify(v.t, t); err != nil {
		return r.fail(errors.WithMessagef(err, "binding %q", name))
	}
	if v.provenance == ProvenanceDeclared {
		v.provenance = provenance
	}
	return nil
}

// Constrain unifies the types of the values a and b, e.g. for an assignment "a = b".
func (r *Resolver) Constrain(a, b string) error {
	return r.constrain(a, b, true)
}

// ConstrainIgnoringShape unifies the types of the values a and b, without requiring tensor shapes to
// agree, e.g. for values assigned in the branches of a loop.
func (r *Resolver) ConstrainIgnoringShape(a, b string) error {
	return r.constrain(a, b, false)
}

func (r *Resolver) constrain(a, b string, inspectShape bool) error {
	if err := r.failed(); err != nil {
		return err
	}
	ta, tb := r.entry(a, 0).t, r.entry(b, 0).t
	var err error
	if inspectShape {
		err = r.unit.Unify(ta, tb)
	} else {
		err = r.unit.UnifyIgnoringShape(ta, tb)
	}
	if err != nil {
		return r.fail(errors.WithMessagef(err, "constraining %q and %q", a, b))
	}
	return nil
}

// Apply infers the result of node with the rule of its operation, and constrains its outputs with it.
//
// A node with several outputs (e.g. "a, b = torch.split(x, 2)") unpacks the result: it must be a sequence,
// with as many elements if its length is known.
func (r *Resolver) Apply(node Node) error {
	if err := r.failed(); err != nil {
		return err
	}
	if len(node.Outputs) == 0 {
		return r.fail(errors.Errorf("node %s at %s has no outputs", node.Op, r.pos(node.Line)))
	}

	call := rules.NewCall(r.unit, r.pos(node.Line))
	for _, input := range node.Inputs {
		call.Args = append(call.Args, r.entry(input, node.Line).t)
	}
	for _, name := range node.sortedKwargs() {
		call.WithKwarg(name, r.entry(node.Kwargs[name], node.Line).t)
	}
	if node.Self != "" {
		call.WithSelf(r.entry(node.Self, node.Line).t)
	}
	result, err := r.registry.Evaluate(node.Op, call)
	if err != nil {
		return r.fail(err)
	}

	outputs := make([]typing.Type, len(node.Outputs))
	for ii, name := range node.Outputs {
		v := r.entry(name, node.Line)
		if v.producer == nil {
			v.producer = &node
		}
		if v.provenance == ProvenanceDeclared {
			v.provenance = ProvenanceComputed
		}
		outputs[ii] = v.t
	}
	results, err := unpack(result, len(outputs))
	if err != nil {
		return r.fail(errors.WithMessagef(err, "applying %s at %s", node.Op, r.pos(node.Line)))
	}
	for ii, output := range outputs {
		if err := r.unit.Unify(output, results[ii]); err != nil {
			return r.fail(errors.WithMessagef(err, "applying %s at %s, output %q", node.Op, r.pos(node.Line), node.Outputs[ii]))
		}
	}
	klog.V(2).Infof("resolve: %s -> %s", node, typing.Show(result))
	return nil
}

// unpack splits the result of an operation among n outputs. With more than one output, the result must be
// a sequence: of exactly n elements if its length is fixed, otherwise each output gets a copy of the
// element type.
func unpack(result typing.Type, n int) ([]typing.Type, error) {
	if n == 1 {
		return []typing.Type{result}, nil
	}
	seq, ok := result.(*typing.Sequence)
	if !ok {
		return nil, errors.Errorf("cannot unpack %s into %d values", typing.Show(result), n)
	}
	if !seq.IsFixedLen() {
		results := make([]typing.Type, n)
		for ii := range results {
			results[ii] = typing.Copy(seq.Elem())
		}
		return results, nil
	}
	if len(seq.Elems()) != n {
		return nil, errors.Errorf("cannot unpack %d values of %s into %d values", len(seq.Elems()), typing.Show(result), n)
	}
	return seq.Elems(), nil
}

// Type returns the current type of name, dereferenced as far as it is known.
func (r *Resolver) Type(name string) (typing.Type, bool) {
	v, found := r.values[name]
	if !found {
		return nil, false
	}
	return typing.Deref(v.t), true
}

// Provenance returns where the type of name comes from.
func (r *Resolver) Provenance(name string) Provenance {
	v, found := r.values[name]
	if !found {
		return ProvenanceUnknown
	}
	return v.provenance
}

// Names returns the names of the values, in declaration order.
func (r *Resolver) Names() []string {
	return slices.Clone(r.order)
}

// Resolve dereferences the type of every value. It fails with a *typing.UnresolvedTypeError, naming the
// first value (in declaration order) whose type still has an unbound variable.
func (r *Resolver) Resolve() (map[string]typing.Type, error) {
	if err := r.failed(); err != nil {
		return nil, err
	}
	types := make(map[string]typing.Type, len(r.order))
	for _, name := range r.order {
		t, err := typing.Resolve(r.values[name].t)
		if err != nil {
			var unresolved *typing.UnresolvedTypeError
			if errors.As(err, &unresolved) {
				unresolved.Name = name
			}
			return nil, err
		}
		types[name] = t
		klog.V(2).Infof("resolve: %s: %s", name, typing.Show(t))
	}
	return types, nil
}
