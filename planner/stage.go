package planner

// Stage accumulates the operations assigned to one device. Steps and
// variables shared between the stage's operations are tracked in
// deduplicated sets, so memory contributed by a re-used sub-graph is billed
// once however many appearances land in the stage. Add and RemoveLast form
// the solver's tentative/undo protocol; a stage is not mutated once solving
// has returned.
type Stage struct {
	analysis *Analysis
	ops      []*NamedOperation
	steps    map[int64]struct{}
	vars     map[int64]struct{}
	journal  []stageEntry
	peak     []int64 // nil when stale
}

// stageEntry records what one Add contributed, so RemoveLast can take
// exactly that back.
type stageEntry struct {
	steps []int64
	vars  []int64
}

// NewStage returns an empty stage reading profile data through a.
func NewStage(a *Analysis) *Stage {
	if a == nil {
		panic("planner: NewStage requires an Analysis")
	}
	return &Stage{
		analysis: a,
		steps:    make(map[int64]struct{}),
		vars:     make(map[int64]struct{}),
	}
}

// Add assigns an operation appearance to the stage. Steps and variables the
// stage already covers are not added again.
func (s *Stage) Add(op *NamedOperation) {
	o := op.Operation()
	var entry stageEntry
	for _, id := range o.steps {
		if _, ok := s.steps[id]; ok {
			continue
		}
		s.steps[id] = struct{}{}
		entry.steps = append(entry.steps, id)
	}
	for _, id := range o.vars {
		if _, ok := s.vars[id]; ok {
			continue
		}
		s.vars[id] = struct{}{}
		entry.vars = append(entry.vars, id)
	}
	s.ops = append(s.ops, op)
	s.journal = append(s.journal, entry)
	s.peak = nil
}

// RemoveLast undoes the most recent Add.
func (s *Stage) RemoveLast() {
	if len(s.ops) == 0 {
		panic("planner: RemoveLast on an empty stage")
	}
	entry := s.journal[len(s.journal)-1]
	for _, id := range entry.steps {
		delete(s.steps, id)
	}
	for _, id := range entry.vars {
		delete(s.vars, id)
	}
	s.journal = s.journal[:len(s.journal)-1]
	s.ops = s.ops[:len(s.ops)-1]
	s.peak = nil
}

// Len returns the number of operation appearances assigned to the stage.
func (s *Stage) Len() int { return len(s.ops) }

// Operations returns the assigned appearances in assignment order.
func (s *Stage) Operations() []*NamedOperation {
	out := make([]*NamedOperation, len(s.ops))
	copy(out, s.ops)
	return out
}

// StepCount returns the number of distinct steps the stage covers.
func (s *Stage) StepCount() int { return len(s.steps) }

// VariableCount returns the number of distinct variables the stage covers.
func (s *Stage) VariableCount() int { return len(s.vars) }

// VariableBytes returns the total size of the stage's distinct variables.
func (s *Stage) VariableBytes() int64 {
	var total int64
	for id := range s.vars {
		if v, ok := s.analysis.variable(id); ok {
			total += v.bytes
		}
	}
	return total
}

// PeakMemoryPerUnit returns, for every resource unit, the maximum running
// byte total reached while replaying the stage's deduplicated step set in
// global step order. The result is cached until the next Add or RemoveLast;
// the returned slice is a copy.
func (s *Stage) PeakMemoryPerUnit() []int64 {
	p := s.peakPerUnit()
	out := make([]int64, len(p))
	copy(out, p)
	return out
}

func (s *Stage) peakPerUnit() []int64 {
	if s.peak == nil {
		// Map order does not matter here: peakOverSteps replays by
		// global step position regardless of input order.
		ids := make([]int64, 0, len(s.steps))
		for id := range s.steps {
			ids = append(ids, id)
		}
		s.peak = peakOverSteps(s.analysis, ids)
	}
	return s.peak
}

// Fits reports whether every resource unit's peak is within the budget.
func (s *Stage) Fits(budgetPerUnit int64) bool {
	for _, p := range s.peakPerUnit() {
		if p > budgetPerUnit {
			return false
		}
	}
	return true
}

// MaxUnitPeak returns the largest per-unit peak of the stage.
func (s *Stage) MaxUnitPeak() int64 {
	var max int64
	for _, p := range s.peakPerUnit() {
		if p > max {
			max = p
		}
	}
	return max
}

// TotalPeakBytes returns the sum of the per-unit peaks, i.e. the device-wide
// memory the stage needs if every unit hit its peak at once.
func (s *Stage) TotalPeakBytes() int64 {
	var total int64
	for _, p := range s.peakPerUnit() {
		total += p
	}
	return total
}

// FirstLayer returns the layer of the earliest assigned appearance that has
// one, or "" if none do.
func (s *Stage) FirstLayer() string {
	for _, op := range s.ops {
		if op.Layer != "" {
			return op.Layer
		}
	}
	return ""
}

// LastLayer returns the layer of the latest assigned appearance that has
// one, or "" if none do.
func (s *Stage) LastLayer() string {
	for i := len(s.ops) - 1; i >= 0; i-- {
		if s.ops[i].Layer != "" {
			return s.ops[i].Layer
		}
	}
	return ""
}
