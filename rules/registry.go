// Package rules holds the shape/dtype inference rules of the external tensor operations, and the registry
// that dispatches a recognized call to its rule.
//
// Rules assert their preconditions by panicking (with exceptions.Panicf). Registry.Evaluate converts any
// such panic to a *typing.InvalidOperationUse naming the operation and the call site.
package rules

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/core/dtypes"
	"github.com/gomlx/shapeinfer/typing"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// Rule infers the result type of one operation from the types of its arguments.
//
// Arguments in the call are already dereferenced. Infer may refine them by unification, and panics if the
// arguments don't satisfy the operation's preconditions.
type Rule interface {
	Infer(call *Call) typing.Type
}

// RuleFunc adapts a function to a Rule.
type RuleFunc func(call *Call) typing.Type

// Infer implements Rule.
func (f RuleFunc) Infer(call *Call) typing.Type { return f(call) }

// DTypePromotion controls how dtype mismatches of elementwise operations are handled.
type DTypePromotion struct {
	// AllowPromotion enables automatic dtype promotion. If false (default), the dtypes of both
	// operands must be the same.
	AllowPromotion bool

	// PrioritizeFloat16 prefers Float16 over Float32 when promoting.
	// Only applies when AllowPromotion is true.
	PrioritizeFloat16 bool
}

// Registry maps each Op to its Rule. It is built once, with the builtin rules, and is read-only during
// evaluation.
type Registry struct {
	rules     [numOps]Rule
	promotion DTypePromotion
}

// NewRegistry returns a registry with the builtin rules of every Op.
func NewRegistry() *Registry {
	r := &Registry{}
	for op, rule := range builtinRules() {
		r.rules[op] = rule
	}
	return r
}

// WithDTypePromotion configures how elementwise operations on different dtypes are handled.
// It returns the registry itself, so it can be chained.
func (r *Registry) WithDTypePromotion(config DTypePromotion) *Registry {
	r.promotion = config
	return r
}

// Register overrides the rule of op.
func (r *Registry) Register(op Op, rule Rule) {
	if !op.IsValid() {
		exceptions.Panicf("rules.Registry.Register: invalid op %s", op)
	}
	r.rules[op] = rule
}

// Rule returns the rule registered for op, or nil.
func (r *Registry) Rule(op Op) Rule {
	if !op.IsValid() {
		return nil
	}
	return r.rules[op]
}

// Evaluate infers the result type of the call of op.
//
// The arguments are dereferenced before the rule is invoked. If the arguments violate the preconditions of
// op, it returns a *typing.InvalidOperationUse wrapping the reason (which may itself be a unification error).
func (r *Registry) Evaluate(op Op, call *Call) (result typing.Type, err error) {
	rule := r.Rule(op)
	if rule == nil {
		return nil, &typing.InvalidOperationUse{Op: op.String(), Pos: call.Pos, Err: errors.New("operation has no rule")}
	}
	if call.Unit == nil {
		call.Unit = typing.NewUnit()
	}
	call.op = op
	call.registry = r
	if call.Self != nil {
		call.Self = typing.Deref(call.Self)
	}
	for ii, arg := range call.Args {
		call.Args[ii] = typing.Deref(arg)
	}
	for name, kwarg := range call.Kwargs {
		call.Kwargs[name] = typing.Deref(kwarg)
	}

	err = exceptions.TryCatch[error](func() { result = rule.Infer(call) })
	if err == nil && result == nil {
		err = errors.New("rule returned no type")
	}
	if err != nil {
		klog.V(1).Infof("rules: %s%s at %s failed: %v", op, call, call.Pos, err)
		return nil, &typing.InvalidOperationUse{Op: op.String(), Pos: call.Pos, Err: err}
	}
	klog.V(2).Infof("rules: %s%s -> %s", op, call, result)
	return result, nil
}

// promoteDTypes returns the dtype of the result of an elementwise operation on lhs and rhs.
// It panics if the dtypes differ and promotion is not allowed.
//
// When PrioritizeFloat16 is enabled, Float16+Float32 promotes to Float16.
// Otherwise, standard promotion rules apply: Float64 > Float32 > Float16 > Int64 > ...
func (r *Registry) promoteDTypes(lhs, rhs dtypes.DType) dtypes.DType {
	if lhs == rhs {
		return lhs
	}
	if !r.promotion.AllowPromotion {
		exceptions.Panicf("dtype mismatch: %s vs %s (implicit casting is disabled; use Registry.WithDTypePromotion() to enable)",
			typing.DTypeName(lhs), typing.DTypeName(rhs))
	}
	if r.promotion.PrioritizeFloat16 {
		if (lhs == dtypes.Float16 && rhs == dtypes.Float32) || (lhs == dtypes.Float32 && rhs == dtypes.Float16) {
			return dtypes.Float16
		}
	}
	if dtypePriority(rhs) > dtypePriority(lhs) {
		return rhs
	}
	return lhs
}

// dtypePriority returns a priority value for dtype promotion.
// Higher values are preferred in mixed-type operations.
func dtypePriority(dt dtypes.DType) int {
	switch dt {
	case dtypes.Complex128:
		return 110
	case dtypes.Complex64:
		return 105
	case dtypes.Float64:
		return 100
	case dtypes.Float32:
		return 90
	case dtypes.Float16, dtypes.BFloat16:
		return 80
	case dtypes.Int64:
		return 70
	case dtypes.Int32:
		return 60
	case dtypes.Int16:
		return 50
	case dtypes.Int8:
		return 40
	case dtypes.Uint64:
		return 35
	case dtypes.Uint32:
		return 30
	case dtypes.Uint16:
		return 25
	case dtypes.Uint8:
		return 20
	case dtypes.Bool:
		return 10
	default:
		return 0
	}
}

// Signature is one candidate of an Overloads rule: templates of the positional arguments, possibly with
// symbolic dimensions, and the template of the result.
type Signature struct {
	Args   []typing.Type
	Result typing.Type
}

// Overloads is a rule that tries each signature in order, and returns the result of the first whose
// argument templates match the call's arguments, with the symbols bound by the match.
type Overloads []Signature

// Infer implements Rule.
func (o Overloads) Infer(call *Call) typing.Type {
	for _, sig := range o {
		subst, err := typing.MatchAll(sig.Args, call.Args)
		if err != nil {
			if typing.IsMatchFail(err) {
				continue
			}
			panic(err)
		}
		return subst.Instantiate(sig.Result)
	}
	exceptions.Panicf("no signature of %s matches the arguments %s", call.op, call)
	return nil
}
