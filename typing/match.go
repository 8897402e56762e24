package typing

import (
	"maps"
	"slices"

	"github.com/gomlx/exceptions"
)

// Subst is the substitution produced by Match: it binds the symbolic dimensions of a template to the
// dimensions found in the concrete type.
type Subst map[string]Dim

// Apply returns a copy of template with every bound symbolic dimension replaced.
// Unbound symbols are left as they are. The template itself is not modified.
func (s Subst) Apply(template Type) Type {
	switch t := template.(type) {
	case *Sequence:
		var c *Sequence
		if t.fixed {
			elems := make([]Type, len(t.elems))
			for ii, e := range t.elems {
				elems[ii] = s.Apply(e)
			}
			c = &Sequence{Kind: t.Kind, fixed: true, elems: elems}
		} else {
			c = &Sequence{Kind: t.Kind, elem: s.Apply(t.elem)}
		}
		c.optional = t.optional
		return c
	case *Dict:
		c := NewDict(s.Apply(t.Key), s.Apply(t.Value))
		c.optional = t.optional
		return c
	case *Tensor:
		c := NewTensor(t.Kind, t.DType, s.ApplyShape(t.Shape))
		c.optional = t.optional
		return c
	}
	return template
}

// ApplyShape returns a copy of shape with every symbolic dimension bound to a known size replaced.
func (s Subst) ApplyShape(shape Shape) Shape {
	c := shape.Clone()
	for ii, d := range c {
		if d.symbol == "" {
			continue
		}
		if bound, found := s[d.symbol]; found && bound.known {
			c[ii] = bound
		}
	}
	return c
}

// Instantiate returns a copy of template in which every symbolic dimension is replaced by its binding, or
// by an unknown dimension if unbound. The result holds no symbols and can be used as a rule result.
func (s Subst) Instantiate(template Type) Type {
	full := make(Subst, len(s))
	for name, d := range s {
		d.symbol = ""
		full[name] = d
	}
	t := full.Apply(template)
	stripSymbols(t)
	return t
}

func stripSymbols(t Type) {
	switch t := t.(type) {
	case *Sequence:
		if t.fixed {
			for _, e := range t.elems {
				stripSymbols(e)
			}
		} else {
			stripSymbols(t.elem)
		}
	case *Dict:
		stripSymbols(t.Key)
		stripSymbols(t.Value)
	case *Tensor:
		for ii, d := range t.Shape {
			if d.symbol != "" {
				t.Shape[ii] = Unknown()
			}
		}
	}
}

// String renders the substitution, sorted by symbol.
func (s Subst) String() string {
	var parts []byte
	parts = append(parts, '{')
	for ii, name := range slices.Sorted(maps.Keys(s)) {
		if ii > 0 {
			parts = append(parts, ", "...)
		}
		parts = append(parts, name...)
		parts = append(parts, '=')
		parts = append(parts, s[name].String()...)
	}
	parts = append(parts, '}')
	return string(parts)
}

// Match matches a template against a concrete type, one-directionally: neither is modified.
//
// The template must not contain type variables nor arrows (it panics otherwise). Symbolic dimensions of the
// template are bound in the returned substitution. A structural clash returns a *MatchFail, which is
// recoverable: callers try their next candidate template.
func Match(template, concrete Type) (Subst, error) {
	subst := make(Subst)
	if err := matchInto(subst, template, concrete); err != nil {
		return nil, err
	}
	return subst, nil
}

// MatchAll matches each template against the corresponding concrete type, left to right: each template
// is first substituted with the bindings accumulated so far.
func MatchAll(templates, concretes []Type) (Subst, error) {
	if len(templates) != len(concretes) {
		return nil, &MatchFail{
			Template: Show(NewTuple(templates...)),
			Concrete: Show(NewTuple(concretes...)),
		}
	}
	subst := make(Subst)
	for ii, template := range templates {
		template = subst.Apply(template)
		if err := matchInto(subst, template, concretes[ii]); err != nil {
			return nil, err
		}
	}
	return subst, nil
}

func matchInto(subst Subst, template, concrete Type) error {
	concrete = chase(concrete)
	switch template.(type) {
	case *Var, *Arrow:
		exceptions.Panicf("typing.Match: template %s must not contain type variables or arrows", template)
	}
	if _, ok := concrete.(*Arrow); ok {
		return &MatchFail{Template: Show(template), Concrete: Show(concrete)}
	}
	fail := func() error {
		return &MatchFail{Template: Show(template), Concrete: Show(concrete)}
	}

	switch t := template.(type) {
	case *None:
		if _, ok := concrete.(*None); ok {
			return nil
		}
	case *Num:
		if _, ok := concrete.(*Num); ok {
			return nil
		}
	case *String:
		if _, ok := concrete.(*String); ok {
			return nil
		}
	case *Sequence:
		c, ok := concrete.(*Sequence)
		if !ok || c.fixed != t.fixed {
			return fail()
		}
		if !t.fixed {
			return matchInto(subst, t.elem, c.elem)
		}
		if len(t.elems) != len(c.elems) {
			return fail()
		}
		for ii := range t.elems {
			if err := matchInto(subst, subst.Apply(t.elems[ii]), c.elems[ii]); err != nil {
				return err
			}
		}
		return nil
	case *Dict:
		if c, ok := concrete.(*Dict); ok {
			if err := matchInto(subst, t.Key, c.Key); err != nil {
				return err
			}
			return matchInto(subst, subst.Apply(t.Value), c.Value)
		}
	case *Tensor:
		c, ok := concrete.(*Tensor)
		if !ok || !compatibleKinds(t.Kind, c.Kind) || t.DType != c.DType || t.Rank() != c.Rank() {
			return fail()
		}
		if !matchShape(subst, t.Shape, c.Shape) {
			return fail()
		}
		return nil
	case *DType:
		if c, ok := concrete.(*DType); ok && c.DType == t.DType {
			return nil
		}
	case *Class:
		if c, ok := concrete.(*Class); ok && c.Name == t.Name {
			return nil
		}
	default:
		exceptions.Panicf("typing.Match: unknown template type %T", template)
	}
	return fail()
}

// matchShape binds the symbols of the template shape. A known template dimension requires an equal
// concrete one, or an unknown one.
func matchShape(subst Subst, template, concrete Shape) bool {
	for ii, td := range template {
		cd := concrete[ii]
		if name := td.symbol; name != "" {
			bound, found := subst[name]
			switch {
			case !found:
				subst[name] = cd
			case bound.known && cd.known && bound.value != cd.value:
				return false
			case !bound.known && cd.known:
				subst[name] = cd
			}
			continue
		}
		if td.known && cd.known && td.value != cd.value {
			return false
		}
	}
	return true
}
