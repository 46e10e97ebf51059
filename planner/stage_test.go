package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcore/popliner/profile"
)

func TestStageAdd_TwoReferencesToOneOperation_CountedOnce(t *testing.T) {
	// GIVEN a list where operation 7 is referenced by two appearances
	rep := report(1, node(0, "", []*profile.Node{
		node(7, "Layer0", nil, step(1, []profile.UnitDelta{delta(0, 100)}, 1)),
		node(2, "Layer1", nil, step(2, []profile.UnitDelta{delta(0, 10)})),
		node(7, "Layer0", nil, step(3, []profile.UnitDelta{delta(0, 50)}, 1)),
	}), profile.Variable{ID: 1, Bytes: 64, LiveStart: 1, LiveEnd: 4})
	list := mustList(t, rep)
	require.Equal(t, 3, list.Len())

	first, third := list.At(0), list.At(2)
	require.Equal(t, first.OperationID(), third.OperationID())

	// WHEN both references land in the same stage
	stage := NewStage(list.Analysis())
	stage.Add(first)
	peakAfterFirst := stage.PeakMemoryPerUnit()
	stage.Add(third)

	// THEN the second reference adds nothing: same steps, same variables,
	// same peak
	assert.Equal(t, 2, stage.Len())
	assert.Equal(t, first.Operation().StepCount(), stage.StepCount())
	assert.Equal(t, peakAfterFirst, stage.PeakMemoryPerUnit())
	assert.Equal(t, int64(64), stage.VariableBytes())
}

func TestStageRemoveLast_RestoresPreviousState(t *testing.T) {
	list := mustList(t, layerChainReport(100, 40, 60))
	stage := NewStage(list.Analysis())

	stage.Add(list.At(0))
	wantPeak := stage.PeakMemoryPerUnit()
	wantSteps := stage.StepCount()

	stage.Add(list.At(1))
	require.Equal(t, 2, stage.Len())
	stage.RemoveLast()

	assert.Equal(t, 1, stage.Len())
	assert.Equal(t, wantSteps, stage.StepCount())
	assert.Equal(t, wantPeak, stage.PeakMemoryPerUnit())
}

func TestStageRemoveLast_KeepsEntriesOwnedByEarlierAdd(t *testing.T) {
	// GIVEN two operations that share variable 5
	rep := report(1, node(0, "", []*profile.Node{
		node(1, "Layer0", nil, step(1, []profile.UnitDelta{delta(0, 10)}, 5)),
		node(2, "Layer1", nil, step(2, []profile.UnitDelta{delta(0, 20)}, 5, 6)),
	}),
		profile.Variable{ID: 5, Bytes: 100, LiveStart: 1, LiveEnd: 3},
		profile.Variable{ID: 6, Bytes: 30, LiveStart: 2, LiveEnd: 3},
	)
	list := mustList(t, rep)

	stage := NewStage(list.Analysis())
	stage.Add(list.At(0))
	stage.Add(list.At(1))
	require.Equal(t, int64(130), stage.VariableBytes())

	// WHEN the second operation is undone
	stage.RemoveLast()

	// THEN variable 5 stays: the first add brought it in, so the undo
	// must only take back what the second add contributed
	assert.Equal(t, int64(100), stage.VariableBytes())
	assert.Equal(t, 1, stage.VariableCount())
}

func TestStagePeak_InterleavedSteps_ReplayedInGlobalOrder(t *testing.T) {
	// GIVEN operation A with steps 1 and 3, operation B with step 2, where
	// A frees in step 3 what it allocated in step 1
	rep := report(1, node(0, "", []*profile.Node{
		node(7, "Layer0", nil,
			step(1, []profile.UnitDelta{delta(0, 100)}),
			step(3, []profile.UnitDelta{delta(0, -100)})),
		node(2, "Layer1", nil, step(2, []profile.UnitDelta{delta(0, 50)})),
	}))
	list := mustList(t, rep)

	stage := NewStage(list.Analysis())
	stage.Add(list.At(0))
	stage.Add(list.At(1))

	// THEN the replay is step 1, 2, 3 and the peak includes B's step
	// while A's allocation is still live
	assert.Equal(t, []int64{150}, stage.PeakMemoryPerUnit())
}

func TestStagePeak_MultipleUnits_IndependentPeaks(t *testing.T) {
	rep := report(3, node(0, "", []*profile.Node{
		node(1, "Layer0", nil,
			step(1, []profile.UnitDelta{delta(0, 100), delta(2, 10)}),
			step(2, []profile.UnitDelta{delta(0, -60), delta(2, 30)})),
	}))
	list := mustList(t, rep)

	stage := NewStage(list.Analysis())
	stage.Add(list.At(0))

	assert.Equal(t, []int64{100, 0, 40}, stage.PeakMemoryPerUnit())
	assert.Equal(t, int64(100), stage.MaxUnitPeak())
	assert.Equal(t, int64(140), stage.TotalPeakBytes())
	assert.True(t, stage.Fits(100))
	assert.False(t, stage.Fits(99))
}

func TestStage_FirstAndLastLayer_SkipUnnamed(t *testing.T) {
	rep := report(1, node(0, "", []*profile.Node{
		node(1, "input", nil, step(1, []profile.UnitDelta{delta(0, 1)})),
		node(2, "Layer2", nil, step(2, []profile.UnitDelta{delta(0, 1)})),
		node(3, "Layer5", nil, step(3, []profile.UnitDelta{delta(0, 1)})),
		node(4, "output", nil, step(4, []profile.UnitDelta{delta(0, 1)})),
	}))
	list := mustList(t, rep)

	stage := NewStage(list.Analysis())
	for i := 0; i < list.Len(); i++ {
		stage.Add(list.At(i))
	}

	assert.Equal(t, "2", stage.FirstLayer())
	assert.Equal(t, "5", stage.LastLayer())
}

func TestStage_EmptyStage_ZeroValues(t *testing.T) {
	list := mustList(t, layerChainReport(10))
	stage := NewStage(list.Analysis())

	assert.Equal(t, 0, stage.Len())
	assert.Equal(t, 0, stage.StepCount())
	assert.Equal(t, []int64{0}, stage.PeakMemoryPerUnit())
	assert.Equal(t, int64(0), stage.VariableBytes())
	assert.Equal(t, "", stage.FirstLayer())
	assert.True(t, stage.Fits(0))
}

func TestNewStage_NilAnalysis_Panics(t *testing.T) {
	assert.PanicsWithValue(t,
		"planner: NewStage requires an Analysis",
		func() { NewStage(nil) })
}

func TestStageRemoveLast_Empty_Panics(t *testing.T) {
	list := mustList(t, layerChainReport(10))
	assert.PanicsWithValue(t,
		"planner: RemoveLast on an empty stage",
		func() { NewStage(list.Analysis()).RemoveLast() })
}
