package planner

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// fillRatios are the fractions of the per-unit budget each packing attempt
// targets, tried in order. Starting below 1.0 leaves headroom so the final
// stage is not disproportionately full; the full budget is only used when
// nothing looser fits.
var fillRatios = []float64{0.6, 0.7, 0.8, 0.9, 1.0}

// GreedySolver packs the operations of a list into per-device stages. The
// zero device is stage 0; operations keep their list order and are never
// moved to an earlier stage, matching a strict pipeline.
type GreedySolver struct {
	list *OperationList

	// LayerOperationsOnly restricts packing to appearances assigned to a
	// layer. Unnamed operations are skipped entirely, including their
	// memory, so the resulting partition only describes the layered part
	// of the model.
	LayerOperationsOnly bool
}

// NewGreedySolver returns a solver over list.
func NewGreedySolver(list *OperationList) *GreedySolver {
	if list == nil {
		panic("planner: NewGreedySolver requires an OperationList")
	}
	return &GreedySolver{list: list}
}

// Solve partitions the operations into at most numDevices stages whose
// per-unit peak memory stays within budgetPerUnit. Fill ratios are tried
// from loosest to tightest and the first complete packing wins. An empty
// operation list solves to an empty partition. If even the full budget
// cannot fit every operation, Solve returns an *InsufficientDevicesError.
func (g *GreedySolver) Solve(numDevices int, budgetPerUnit int64) ([]*Stage, error) {
	if numDevices < 1 {
		return nil, fmt.Errorf("number of devices must be >= 1, got %d", numDevices)
	}
	if budgetPerUnit <= 0 {
		return nil, fmt.Errorf("memory budget per resource unit must be positive, got %d", budgetPerUnit)
	}
	ops := g.candidates()
	if len(ops) == 0 {
		logrus.Warn("Nothing to solve - no operations selected")
		return []*Stage{}, nil
	}
	for _, ratio := range fillRatios {
		logrus.Infof("Trying to fit operations at %d%% of %d bytes per unit", int(ratio*100), budgetPerUnit)
		stages, ok := g.pack(ops, numDevices, budgetPerUnit, ratio)
		if ok {
			logrus.Infof("Fitted %d operations into %d stage(s) at %d%% fill",
				len(ops), len(stages), int(ratio*100))
			return stages, nil
		}
	}
	return nil, &InsufficientDevicesError{NumDevices: numDevices, BudgetPerUnit: budgetPerUnit}
}

func (g *GreedySolver) candidates() []*NamedOperation {
	ops := make([]*NamedOperation, 0, g.list.Len())
	for i := 0; i < g.list.Len(); i++ {
		op := g.list.At(i)
		if g.LayerOperationsOnly && !op.InLayer() {
			continue
		}
		ops = append(ops, op)
	}
	return ops
}

// pack walks ops in order, adding each to the current stage, keeping the
// addition while every unit's peak stays within ratio*budget and otherwise
// undoing it and retrying on a fresh stage. It fails as soon as the packing
// would need more than numDevices stages.
func (g *GreedySolver) pack(ops []*NamedOperation, numDevices int, budget int64, ratio float64) ([]*Stage, bool) {
	limit := ratio * float64(budget)
	a := g.list.Analysis()
	stages := []*Stage{NewStage(a)}
	for _, op := range ops {
		for {
			current := stages[len(stages)-1]
			current.Add(op)
			if withinLimit(current.peakPerUnit(), limit) {
				break
			}
			current.RemoveLast()
			if len(stages) == numDevices {
				logrus.Debugf("Operation %q does not fit on stage %d and no devices remain",
					op.Name, len(stages)-1)
				return nil, false
			}
			logrus.Debugf("Operation %q overflows stage %d, opening stage %d",
				op.Name, len(stages)-1, len(stages))
			stages = append(stages, NewStage(a))
		}
	}
	return stages, true
}

func withinLimit(peak []int64, limit float64) bool {
	for _, p := range peak {
		if float64(p) > limit {
			return false
		}
	}
	return true
}
