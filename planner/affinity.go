package planner

// Layer diagnostics. These are informational helpers over the finished
// operation list; the solver does not use them. Unnamed operations carry no
// layer and never contribute here, however much memory they hold.

// layerVariables returns the deduplicated variable set of the appearances
// assigned to layer.
func layerVariables(list *OperationList, layer string) map[int64]struct{} {
	set := make(map[int64]struct{})
	seenOps := make(map[int64]struct{})
	for i := 0; i < list.Len(); i++ {
		named := list.At(i)
		if named.Layer != layer || named.Layer == "" {
			continue
		}
		if _, done := seenOps[named.opID]; done {
			continue
		}
		seenOps[named.opID] = struct{}{}
		for _, id := range named.Operation().vars {
			set[id] = struct{}{}
		}
	}
	return set
}

// layerStepSpan returns the lowest and highest step ID covered by layer's
// operations, and whether the layer has any steps at all.
func layerStepSpan(list *OperationList, layer string) (first, last int64, ok bool) {
	seenOps := make(map[int64]struct{})
	for i := 0; i < list.Len(); i++ {
		named := list.At(i)
		if named.Layer != layer || named.Layer == "" {
			continue
		}
		if _, done := seenOps[named.opID]; done {
			continue
		}
		seenOps[named.opID] = struct{}{}
		for _, id := range named.Operation().steps {
			if !ok {
				first, last, ok = id, id, true
				continue
			}
			if id < first {
				first = id
			}
			if id > last {
				last = id
			}
		}
	}
	return first, last, ok
}

// MemoryAffinity returns the total size of the variables shared by the two
// layers. High affinity suggests the layers should land on the same device.
// Pure: neither the list nor any operation is mutated.
func MemoryAffinity(list *OperationList, layerA, layerB string) int64 {
	a := layerVariables(list, layerA)
	b := layerVariables(list, layerB)
	if len(b) < len(a) {
		a, b = b, a
	}
	var total int64
	for id := range a {
		if _, shared := b[id]; !shared {
			continue
		}
		if v, ok := list.analysis.variable(id); ok {
			total += v.bytes
		}
	}
	return total
}

// InterlayerExchange returns the total size of the variables created during
// layerA's steps and last live during layerB's steps. It estimates the data
// a pipeline split between the two layers would have to carry across
// devices. Pure, like MemoryAffinity.
func InterlayerExchange(list *OperationList, layerA, layerB string) int64 {
	firstA, lastA, okA := layerStepSpan(list, layerA)
	firstB, lastB, okB := layerStepSpan(list, layerB)
	if !okA || !okB {
		return 0
	}
	varsA := layerVariables(list, layerA)
	varsB := layerVariables(list, layerB)
	var total int64
	for id := range varsA {
		if _, shared := varsB[id]; !shared {
			continue
		}
		v, ok := list.analysis.variable(id)
		if !ok {
			continue
		}
		lastLive := v.liveEnd - 1
		if v.liveStart >= firstA && v.liveStart <= lastA && lastLive >= firstB && lastLive <= lastB {
			total += v.bytes
		}
	}
	return total
}

// MemoryAffinityMatrix evaluates MemoryAffinity for every ordered pair of
// the list's layers. Row and column order is the layer discovery order.
func MemoryAffinityMatrix(list *OperationList) ([]string, [][]int64) {
	return layerMatrix(list, MemoryAffinity)
}

// InterlayerExchangeMatrix evaluates InterlayerExchange for every ordered
// pair of the list's layers.
func InterlayerExchangeMatrix(list *OperationList) ([]string, [][]int64) {
	return layerMatrix(list, InterlayerExchange)
}

func layerMatrix(list *OperationList, f func(*OperationList, string, string) int64) ([]string, [][]int64) {
	layers := list.Layers()
	matrix := make([][]int64, len(layers))
	for i, a := range layers {
		matrix[i] = make([]int64, len(layers))
		for j, b := range layers {
			matrix[i][j] = f(list, a, b)
		}
	}
	return layers, matrix
}
