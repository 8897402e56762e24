package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gomlx/gomlx/pkg/support/sets"
	"github.com/gomlx/shapeinfer/typing"
)

// maxTraceDepth limits the depth of TraceDependencies.
const maxTraceDepth = 20

// isResolved returns whether the type of the value has no unbound variable left.
func (v *value) isResolved() bool {
	return typing.FreeVar(v.t) == nil
}

// FindFirstUnresolved finds the first value, in declaration order, whose type is not fully resolved.
// It returns the node producing it, nil if it is not the output of an operation.
func (r *Resolver) FindFirstUnresolved() (string, *Node) {
	for _, name := range r.order {
		if v := r.values[name]; !v.isResolved() {
			return name, v.producer
		}
	}
	return "", nil
}

// UnresolvedByOp counts the values whose type is not fully resolved, grouped by the operation producing
// them. Values not produced by an operation are counted under their provenance (e.g. "declared").
func (r *Resolver) UnresolvedByOp() map[string]int {
	counts := make(map[string]int)
	for _, name := range r.order {
		v := r.values[name]
		if v.isResolved() {
			continue
		}
		if v.producer != nil {
			counts[v.producer.Op.String()]++
		} else {
			counts[v.provenance.String()]++
		}
	}
	return counts
}

// UnresolvedSummary renders UnresolvedByOp, most frequent first, one "op: count" per line.
func (r *Resolver) UnresolvedSummary() string {
	type opCount struct {
		op    string
		count int
	}
	var ops []opCount
	for op, count := range r.UnresolvedByOp() {
		ops = append(ops, opCount{op, count})
	}
	sort.Slice(ops, func(i, j int) bool {
		if ops[i].count != ops[j].count {
			return ops[i].count > ops[j].count
		}
		return ops[i].op < ops[j].op
	})
	var sb strings.Builder
	for _, oc := range ops {
		fmt.Fprintf(&sb, "%s: %d\n", oc.op, oc.count)
	}
	return sb.String()
}

// TraceDependencies renders the tree of values name depends on, with their current types: each value is
// followed by the inputs of the node producing it, indented. Only unresolved values are expanded.
func (r *Resolver) TraceDependencies(name string) string {
	var sb strings.Builder
	r.traceDepsRecursive(&sb, name, 0, sets.Make[string]())
	return sb.String()
}

func (r *Resolver) traceDepsRecursive(sb *strings.Builder, name string, depth int, visited sets.Set[string]) {
	indent := strings.Repeat("  ", depth)
	if depth > maxTraceDepth {
		fmt.Fprintf(sb, "%s[MAX DEPTH]\n", indent)
		return
	}
	if visited.Has(name) {
		fmt.Fprintf(sb, "%s[SEEN: %s]\n", indent, name)
		return
	}
	visited.Insert(name)

	v, found := r.values[name]
	if !found {
		fmt.Fprintf(sb, "%sUNKNOWN: %s\n", indent, name)
		return
	}
	status := "ok"
	if !v.isResolved() {
		status = "??"
	}
	if v.producer == nil {
		fmt.Fprintf(sb, "%s%s %s: %s (%s)\n", indent, status, name, typing.Show(v.t), v.provenance)
		return
	}
	fmt.Fprintf(sb, "%s%s %s: %s (%s at %s)\n", indent, status, name, typing.Show(v.t), v.producer.Op, r.pos(v.producer.Line))
	if v.isResolved() {
		return
	}
	if v.producer.Self != "" {
		r.traceDepsRecursive(sb, v.producer.Self, depth+1, visited)
	}
	for _, input := range v.producer.Inputs {
		r.traceDepsRecursive(sb, input, depth+1, visited)
	}
	for _, kwarg := range v.producer.sortedKwargs() {
		r.traceDepsRecursive(sb, v.producer.Kwargs[kwarg], depth+1, visited)
	}
}
