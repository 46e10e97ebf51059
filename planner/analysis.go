package planner

import (
	"fmt"
	"sort"

	"github.com/graphcore/popliner/profile"
)

// varInfo is the per-variable record kept by an Analysis.
type varInfo struct {
	bytes     int64
	unit      int
	liveStart int64
	liveEnd   int64 // exclusive
}

// Analysis holds the static lookup tables derived from one profile: the
// global step order, each step's per-unit deltas, and the variable table.
// It is built once by the caller and shared read-only by every Operation and
// Stage, which keep a reference to it instead of copying profile data.
type Analysis struct {
	numUnits  int
	stepOrder []int64               // step IDs, ascending: the global schedule
	stepPos   map[int64]int         // step ID -> index into stepOrder
	deltas    [][]profile.UnitDelta // indexed like stepOrder
	vars      map[int64]varInfo
}

// NewAnalysis indexes a report. The report is not retained: everything later
// computations need is copied into the returned tables. Inconsistencies that
// would corrupt those tables (duplicate step IDs, out-of-range units,
// references to unknown variables) are reported as *profile.MalformedError.
func NewAnalysis(rep *profile.Report) (*Analysis, error) {
	a := &Analysis{
		numUnits: rep.Target.NumUnits,
		stepPos:  make(map[int64]int),
		vars:     make(map[int64]varInfo, len(rep.Variables)),
	}
	if a.numUnits < 1 {
		return nil, &profile.MalformedError{Reason: "target has no resource units"}
	}
	for _, v := range rep.Variables {
		if _, dup := a.vars[v.ID]; dup {
			return nil, &profile.MalformedError{Reason: fmt.Sprintf("duplicate variable id %d", v.ID)}
		}
		a.vars[v.ID] = varInfo{bytes: v.Bytes, unit: v.Unit, liveStart: v.LiveStart, liveEnd: v.LiveEnd}
	}

	type indexedStep struct {
		id     int64
		deltas []profile.UnitDelta
	}
	var steps []indexedStep
	var walkErr error
	rep.Root.VisitSteps(func(_ []*profile.Node, step *profile.Step) {
		if walkErr != nil {
			return
		}
		if _, dup := a.stepPos[step.ID]; dup {
			walkErr = &profile.MalformedError{Reason: fmt.Sprintf("duplicate step id %d", step.ID)}
			return
		}
		a.stepPos[step.ID] = -1 // claimed, position assigned after sorting
		for _, d := range step.Deltas {
			if d.Unit < 0 || d.Unit >= a.numUnits {
				walkErr = &profile.MalformedError{Reason: fmt.Sprintf("step %d touches unit %d, target has %d units", step.ID, d.Unit, a.numUnits)}
				return
			}
		}
		for _, id := range step.Variables {
			if _, ok := a.vars[id]; !ok {
				walkErr = &profile.MalformedError{Reason: fmt.Sprintf("step %d references unknown variable %d", step.ID, id)}
				return
			}
		}
		steps = append(steps, indexedStep{id: step.ID, deltas: step.Deltas})
	})
	if walkErr != nil {
		return nil, walkErr
	}

	// The global schedule is the ascending step ID order, independent of
	// where a step sits in the tree.
	sort.Slice(steps, func(i, j int) bool { return steps[i].id < steps[j].id })
	a.stepOrder = make([]int64, len(steps))
	a.deltas = make([][]profile.UnitDelta, len(steps))
	for i, s := range steps {
		a.stepOrder[i] = s.id
		a.stepPos[s.id] = i
		a.deltas[i] = s.deltas
	}
	return a, nil
}

// NumUnits returns the number of resource units per device.
func (a *Analysis) NumUnits() int { return a.numUnits }

// StepCount returns the number of steps in the global schedule.
func (a *Analysis) StepCount() int { return len(a.stepOrder) }

func (a *Analysis) stepPosition(id int64) (int, bool) {
	pos, ok := a.stepPos[id]
	return pos, ok
}

func (a *Analysis) deltasAt(pos int) []profile.UnitDelta { return a.deltas[pos] }

func (a *Analysis) variable(id int64) (varInfo, bool) {
	v, ok := a.vars[id]
	return v, ok
}
