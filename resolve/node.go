package resolve

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/shapeinfer/rules"
)

// Node is one call of a recognized operation in the program, over named values.
type Node struct {
	Op   rules.Op
	Line int

	// Self is the value holding the layer object, for layer calls (e.g. "self.fc1" in "self.fc1(x)").
	Self string

	// Inputs are the values passed as positional arguments, and Kwargs maps keyword argument names to
	// the values passed.
	Inputs []string
	Kwargs map[string]string

	// Outputs are the values receiving the result: one, or one per element of a tuple result that is
	// unpacked.
	Outputs []string
}

func (n *Node) sortedKwargs() []string {
	return slices.Sorted(maps.Keys(n.Kwargs))
}

// String renders the node as a call, e.g. "h1 = nn.Linear[self.fc1](x)".
func (n Node) String() string {
	var sb strings.Builder
	sb.WriteString(strings.Join(n.Outputs, ", "))
	sb.WriteString(" = ")
	sb.WriteString(n.Op.String())
	if n.Self != "" {
		fmt.Fprintf(&sb, "[%s]", n.Self)
	}
	args := slices.Clone(n.Inputs)
	for _, name := range n.sortedKwargs() {
		args = append(args, fmt.Sprintf("%s=%s", name, n.Kwargs[name]))
	}
	fmt.Fprintf(&sb, "(%s)", strings.Join(args, ", "))
	return sb.String()
}
