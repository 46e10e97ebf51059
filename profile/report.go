// Package profile reads the memory report recorded while compiling a model
// for a single device. A report carries the debug-context tree of program
// steps, the signed memory delta each step applies to every resource unit
// (tile), and the table of lowered variables with their sizes and live
// ranges. Reports are read-only inputs: nothing in this repository mutates
// them after loading.
package profile

// SupportedFormatVersion is the report format this reader understands.
const SupportedFormatVersion = 1

// Report is the top-level profiling document.
type Report struct {
	FormatVersion int        `json:"format_version"`
	Target        Target     `json:"target"`
	Root          *Node      `json:"root"`
	Variables     []Variable `json:"variables,omitempty"`
}

// Target describes the device the model was compiled for.
type Target struct {
	Name     string `json:"name,omitempty"` // device name, informational
	NumUnits int    `json:"num_units"`      // memory-constrained resource units (tiles) per device
}

// Node is one frame of the debug-context tree. The ordered label stack of a
// step is the chain of Node labels from the root down to the node holding
// the step. Node IDs are stable identities: the grouping of steps into
// operations keys on them.
type Node struct {
	ID       int64   `json:"id"`
	Label    string  `json:"label"`
	Children []*Node `json:"children,omitempty"`
	Steps    []Step  `json:"steps,omitempty"`
}

// Step is a single scheduled low-level action. Deltas list the signed byte
// change the step applies per resource unit; Variables lists the lowered
// variables the step materializes.
type Step struct {
	ID        int64       `json:"id"`
	Deltas    []UnitDelta `json:"deltas,omitempty"`
	Variables []int64     `json:"variables,omitempty"`
}

// UnitDelta is a signed byte delta applied to one resource unit.
type UnitDelta struct {
	Unit  int   `json:"unit"`
	Bytes int64 `json:"bytes"`
}

// Variable describes one lowered variable: its size, the resource unit it
// lives on, and its live range over global step IDs (end exclusive).
type Variable struct {
	ID        int64  `json:"id"`
	Name      string `json:"name,omitempty"`
	Bytes     int64  `json:"bytes"`
	Unit      int    `json:"unit"`
	LiveStart int64  `json:"live_start"`
	LiveEnd   int64  `json:"live_end"`
}

// VisitSteps calls fn for every step under n in depth-first order: a node's
// own steps first, then its children. stack holds the node chain from n down
// to the node owning the step and is reused between calls; callers must not
// retain it.
func (n *Node) VisitSteps(fn func(stack []*Node, step *Step)) {
	if n == nil {
		return
	}
	n.visitSteps(make([]*Node, 0, 8), fn)
}

func (n *Node) visitSteps(stack []*Node, fn func(stack []*Node, step *Step)) {
	stack = append(stack, n)
	for i := range n.Steps {
		fn(stack, &n.Steps[i])
	}
	for _, child := range n.Children {
		child.visitSteps(stack, fn)
	}
}
