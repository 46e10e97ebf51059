package planner

import (
	"fmt"
	"sort"

	"github.com/graphcore/popliner/profile"
)

// Operation is the set of profiled steps sharing one debug-context identity.
// An operation owns its step and variable memberships but not the profile
// data itself, which it reads through the shared Analysis. Peak memory and
// allocation totals are computed on first use and cached; operations are not
// mutated after the list is built, so the caches never go stale.
type Operation struct {
	id       int64
	analysis *Analysis

	steps    []int64 // step IDs in discovery order
	vars     []int64 // variable IDs in first-seen order
	varsSeen map[int64]struct{}

	peak      []int64 // lazily computed per-unit peak
	allocated int64   // lazily computed variable byte total
	allocOK   bool
}

func newOperation(a *Analysis, id int64) *Operation {
	return &Operation{id: id, analysis: a, varsSeen: make(map[int64]struct{})}
}

func (o *Operation) addStep(step *profile.Step) {
	if _, ok := o.analysis.stepPosition(step.ID); !ok {
		panic(fmt.Sprintf("planner: step %d is not indexed by the analysis", step.ID))
	}
	o.steps = append(o.steps, step.ID)
	for _, id := range step.Variables {
		if _, seen := o.varsSeen[id]; seen {
			continue
		}
		o.varsSeen[id] = struct{}{}
		o.vars = append(o.vars, id)
	}
	o.peak = nil
	o.allocOK = false
}

// ID returns the debug-context identity the operation groups on.
func (o *Operation) ID() int64 { return o.id }

// StepCount returns the number of steps grouped under the operation.
func (o *Operation) StepCount() int { return len(o.steps) }

// VariableCount returns the number of distinct variables the operation's
// steps materialize.
func (o *Operation) VariableCount() int { return len(o.vars) }

// AllocatedBytes returns the total size of the operation's distinct
// variables. Each variable is counted once however many steps reference it.
func (o *Operation) AllocatedBytes() int64 {
	if !o.allocOK {
		var total int64
		for _, id := range o.vars {
			if v, ok := o.analysis.variable(id); ok {
				total += v.bytes
			}
		}
		o.allocated = total
		o.allocOK = true
	}
	return o.allocated
}

// PeakMemoryPerUnit returns the per-unit peak of the running byte totals
// reached while replaying only this operation's steps in global order. The
// result is computed once and cached; the returned slice is a copy.
func (o *Operation) PeakMemoryPerUnit() []int64 {
	if o.peak == nil {
		o.peak = peakOverSteps(o.analysis, o.steps)
	}
	out := make([]int64, len(o.peak))
	copy(out, o.peak)
	return out
}

// PeakBytes returns the largest per-unit peak of the operation.
func (o *Operation) PeakBytes() int64 {
	var max int64
	for _, p := range o.PeakMemoryPerUnit() {
		if p > max {
			max = p
		}
	}
	return max
}

// peakOverSteps replays the deltas of the given step IDs in global step
// order and returns the per-unit maximum of the running totals. Duplicate
// IDs in steps must have been removed by the caller; Operation and Stage
// both guarantee that. Peaks never drop below zero: an all-negative replay
// peaks at the empty prefix.
func peakOverSteps(a *Analysis, steps []int64) []int64 {
	positions := make([]int, 0, len(steps))
	for _, id := range steps {
		pos, ok := a.stepPosition(id)
		if !ok {
			panic(fmt.Sprintf("planner: step %d is not indexed by the analysis", id))
		}
		positions = append(positions, pos)
	}
	sort.Ints(positions)

	current := make([]int64, a.NumUnits())
	peak := make([]int64, a.NumUnits())
	for _, pos := range positions {
		for _, d := range a.deltasAt(pos) {
			current[d.Unit] += d.Bytes
			if current[d.Unit] > peak[d.Unit] {
				peak[d.Unit] = current[d.Unit]
			}
		}
	}
	return peak
}

// NamedOperation is one appearance of an operation in the walk order of the
// profile. Several appearances may share the same operation; the handle
// carries the human-readable name and layer of the appearance and resolves
// the operation itself through the owning list.
type NamedOperation struct {
	Name  string // slash-joined debug-context labels down to the identity frame
	Layer string // layer identifier, empty for unnamed operations

	list *OperationList
	opID int64
}

// OperationID returns the identity of the underlying operation.
func (n *NamedOperation) OperationID() int64 { return n.opID }

// InLayer reports whether the appearance was matched to a layer.
func (n *NamedOperation) InLayer() bool { return n.Layer != "" }

// Operation resolves the underlying operation. The handle is only valid for
// the list that created it; resolving against a list that does not know the
// identity is a programming error.
func (n *NamedOperation) Operation() *Operation {
	op, ok := n.list.Operation(n.opID)
	if !ok {
		panic(fmt.Sprintf("planner: operation %d is not in the list", n.opID))
	}
	return op
}
