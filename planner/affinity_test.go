package planner

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/graphcore/popliner/profile"
)

// diagnosticsList builds two layers and one unnamed operation:
//
//	Layer0 (step 1): variables 1, 2
//	Layer1 (steps 2, 3): variables 1, 3
//	input (step 4): variable 4
//
// Variable 1 goes live in Layer0 and dies in Layer1; variable 2 lives only
// within Layer0; variable 3 only within Layer1.
func diagnosticsList(t *testing.T) *OperationList {
	t.Helper()
	rep := report(1, node(0, "", []*profile.Node{
		node(1, "Layer0", nil, step(1, []profile.UnitDelta{delta(0, 10)}, 1, 2)),
		node(2, "Layer1", nil,
			step(2, []profile.UnitDelta{delta(0, 10)}, 1, 3),
			step(3, []profile.UnitDelta{delta(0, 10)})),
		node(3, "input", nil, step(4, []profile.UnitDelta{delta(0, 10)}, 4)),
	}),
		profile.Variable{ID: 1, Bytes: 100, LiveStart: 1, LiveEnd: 3},
		profile.Variable{ID: 2, Bytes: 50, LiveStart: 1, LiveEnd: 2},
		profile.Variable{ID: 3, Bytes: 70, LiveStart: 2, LiveEnd: 4},
		profile.Variable{ID: 4, Bytes: 999, LiveStart: 4, LiveEnd: 5},
	)
	return mustList(t, rep)
}

func TestMemoryAffinity_SharedVariableBytes(t *testing.T) {
	list := diagnosticsList(t)

	// Variable 1 is the only one used by both layers
	assert.Equal(t, int64(100), MemoryAffinity(list, "0", "1"))
	assert.Equal(t, int64(100), MemoryAffinity(list, "1", "0"))

	// A layer's affinity with itself is its whole variable set
	assert.Equal(t, int64(150), MemoryAffinity(list, "0", "0"))
	assert.Equal(t, int64(170), MemoryAffinity(list, "1", "1"))
}

func TestMemoryAffinity_UnknownOrUnnamedLayer_Zero(t *testing.T) {
	list := diagnosticsList(t)

	assert.Equal(t, int64(0), MemoryAffinity(list, "0", "99"))
	// The unnamed operation's variable 4 is invisible to diagnostics.
	assert.Equal(t, int64(0), MemoryAffinity(list, "", ""))
}

func TestInterlayerExchange_BridgingVariablesOnly(t *testing.T) {
	list := diagnosticsList(t)

	// Variable 1 goes live during Layer0 and dies during Layer1
	assert.Equal(t, int64(100), InterlayerExchange(list, "0", "1"))

	// Nothing flows the other way
	assert.Equal(t, int64(0), InterlayerExchange(list, "1", "0"))

	// Within one layer, only variables born and dead inside it count
	assert.Equal(t, int64(50), InterlayerExchange(list, "0", "0"))
	assert.Equal(t, int64(70), InterlayerExchange(list, "1", "1"))
}

func TestInterlayerExchange_LayerWithoutSteps_Zero(t *testing.T) {
	list := diagnosticsList(t)

	assert.Equal(t, int64(0), InterlayerExchange(list, "0", "99"))
	assert.Equal(t, int64(0), InterlayerExchange(list, "99", "0"))
}

func TestMemoryAffinityMatrix_DiscoveryOrder(t *testing.T) {
	list := diagnosticsList(t)

	layers, matrix := MemoryAffinityMatrix(list)
	require.Equal(t, []string{"0", "1"}, layers)
	assert.Equal(t, [][]int64{
		{150, 100},
		{100, 170},
	}, matrix)
}

func TestInterlayerExchangeMatrix_DiscoveryOrder(t *testing.T) {
	list := diagnosticsList(t)

	layers, matrix := InterlayerExchangeMatrix(list)
	require.Equal(t, []string{"0", "1"}, layers)
	assert.Equal(t, [][]int64{
		{50, 100},
		{0, 70},
	}, matrix)
}

func TestDiagnostics_DoNotMutateList(t *testing.T) {
	list := diagnosticsList(t)
	before := list.Len()

	MemoryAffinityMatrix(list)
	InterlayerExchangeMatrix(list)

	assert.Equal(t, before, list.Len())
	assert.Equal(t, []string{"0", "1"}, list.Layers())
}
