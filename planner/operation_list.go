package planner

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/graphcore/popliner/profile"
)

// DefaultLayerNameRegex recognises the layer naming conventions of the
// frameworks we see profiles from. The first capture group is the layer
// identifier.
const DefaultLayerNameRegex = `(?:^|/)(?:[Ll]ayer|blocks|encoder)[/_.]?(\d+)`

// LayerExtractor maps a debug-context label to a layer identifier. It
// returns false when the label does not name a layer.
type LayerExtractor func(label string) (layer string, ok bool)

// RegexLayerExtractor builds a LayerExtractor from a regular expression. If
// the expression has a capture group, the first group is the layer
// identifier; otherwise the whole match is.
func RegexLayerExtractor(expr string) (LayerExtractor, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling layer-name regex: %w", err)
	}
	return func(label string) (string, bool) {
		m := re.FindStringSubmatch(label)
		switch {
		case m == nil:
			return "", false
		case len(m) > 1:
			return m[1], true
		default:
			return m[0], true
		}
	}, nil
}

// OperationList is the ordered sequence of operation appearances discovered
// by walking a profile, together with the identity-keyed arena of the
// operations themselves. Appearance order is the profile's walk order and is
// what the solver packs over.
type OperationList struct {
	analysis *Analysis
	named    []*NamedOperation
	unique   map[int64]*Operation
	layers   []string // distinct non-empty layers in first-appearance order
}

// BuildOperationList groups the steps under root into operations. For each
// step the debug-context stack is scanned innermost first; the first frame
// whose label yields a layer through extract becomes the step's operation
// identity, and the extracted value its layer. Steps with no matching frame
// group under their innermost frame with an empty layer, so their memory
// still counts toward feasibility. A new appearance is recorded whenever
// consecutive steps resolve to different identities; re-entering an identity
// later reuses the same Operation, which is how re-used sub-graphs end up
// accounted once.
//
// root must belong to the profile that produced a. An empty tree yields an
// empty list, which downstream consumers treat as a valid "no data" result.
func BuildOperationList(a *Analysis, root *profile.Node, extract LayerExtractor) *OperationList {
	if extract == nil {
		panic("planner: BuildOperationList requires a LayerExtractor")
	}
	list := &OperationList{
		analysis: a,
		unique:   make(map[int64]*Operation),
	}
	layersSeen := make(map[string]struct{})
	steps := 0
	var prev *NamedOperation
	root.VisitSteps(func(stack []*profile.Node, step *profile.Step) {
		steps++
		identity := stack[len(stack)-1]
		depth := len(stack) - 1
		layer := ""
		for i := len(stack) - 1; i >= 0; i-- {
			if name, ok := extract(stack[i].Label); ok {
				identity = stack[i]
				depth = i
				layer = name
				break
			}
		}
		op, ok := list.unique[identity.ID]
		if !ok {
			op = newOperation(a, identity.ID)
			list.unique[identity.ID] = op
		}
		op.addStep(step)
		if prev == nil || prev.opID != identity.ID {
			prev = &NamedOperation{
				Name:  joinLabels(stack[:depth+1]),
				Layer: layer,
				list:  list,
				opID:  identity.ID,
			}
			list.named = append(list.named, prev)
			if layer != "" {
				if _, seen := layersSeen[layer]; !seen {
					layersSeen[layer] = struct{}{}
					list.layers = append(list.layers, layer)
				}
			}
		}
	})

	if steps == 0 {
		logrus.Warn("No steps found in profile - operation list is empty")
		return list
	}
	logrus.Infof("Operations found - appearances: %d - unique: %d - steps: %d",
		len(list.named), len(list.unique), steps)
	logrus.Infof("Layers found: %v", list.layers)
	return list
}

func joinLabels(stack []*profile.Node) string {
	parts := make([]string, 0, len(stack))
	for _, n := range stack {
		if n.Label != "" {
			parts = append(parts, n.Label)
		}
	}
	if len(parts) == 0 {
		return "Anonymous"
	}
	return strings.Join(parts, "/")
}

// Analysis returns the lookup tables the list was built against.
func (l *OperationList) Analysis() *Analysis { return l.analysis }

// Len returns the number of operation appearances.
func (l *OperationList) Len() int { return len(l.named) }

// At returns the i-th appearance in walk order.
func (l *OperationList) At(i int) *NamedOperation { return l.named[i] }

// UniqueLen returns the number of distinct operations.
func (l *OperationList) UniqueLen() int { return len(l.unique) }

// Operation looks up an operation by identity.
func (l *OperationList) Operation(id int64) (*Operation, bool) {
	op, ok := l.unique[id]
	return op, ok
}

// Layers returns the distinct layer identifiers in first-appearance order.
// Unnamed operations have no layer and are not represented.
func (l *OperationList) Layers() []string {
	out := make([]string, len(l.layers))
	copy(out, l.layers)
	return out
}
