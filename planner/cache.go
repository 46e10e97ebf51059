package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/graphcore/popliner/profile"
)

// Grouping a large profile into operations dominates start-up time, so the
// finished list can be saved to disk and reloaded on later runs instead of
// re-walking the profile.

// Increment when the cachePayload format changes.
const cacheSchemaVersion uint16 = 1

type cachedStep struct {
	ID     int64
	Deltas []profile.UnitDelta
}

type cachedVariable struct {
	ID        int64
	Bytes     int64
	Unit      int
	LiveStart int64
	LiveEnd   int64
}

type cachedOperation struct {
	ID        int64
	Steps     []int64
	Variables []int64
}

type cachedAppearance struct {
	Name  string
	Layer string
	OpID  int64
}

// cachePayload is everything needed to rebuild the analysis tables and the
// operation list without the profile.
type cachePayload struct {
	Schema      uint16
	NumUnits    int
	Steps       []cachedStep // in global step order
	Variables   []cachedVariable
	Operations  []cachedOperation // sorted by ID
	Appearances []cachedAppearance
	Layers      []string
}

// SaveOperations writes the list to path. The file is written to a
// temporary name first and renamed into place, so readers never observe a
// partial cache.
func SaveOperations(path string, list *OperationList) error {
	payload := buildPayload(list)
	f, err := os.CreateTemp(filepath.Dir(path), "tmp-*")
	if err != nil {
		return fmt.Errorf("writing operations cache: %w", err)
	}
	defer os.Remove(f.Name())

	if err := msgpack.NewEncoder(f).Encode(payload); err != nil {
		f.Close()
		return fmt.Errorf("writing operations cache: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("writing operations cache: %w", err)
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("writing operations cache: %w", err)
	}
	return nil
}

// LoadOperations rebuilds an operation list saved by SaveOperations. A
// schema mismatch is an error: the caller should rebuild from the profile.
// Inconsistencies inside the payload are reported as
// *profile.MalformedError, the same taxonomy a bad profile gets.
func LoadOperations(path string) (*OperationList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reading operations cache: %w", err)
	}
	defer f.Close()

	var payload cachePayload
	if err := msgpack.NewDecoder(f).Decode(&payload); err != nil {
		return nil, fmt.Errorf("reading operations cache: %w", err)
	}
	if payload.Schema != cacheSchemaVersion {
		return nil, fmt.Errorf("operations cache %q has schema %d, want %d; rebuild it from the profile",
			path, payload.Schema, cacheSchemaVersion)
	}
	return rebuildList(&payload)
}

func buildPayload(list *OperationList) *cachePayload {
	a := list.analysis
	payload := &cachePayload{
		Schema:   cacheSchemaVersion,
		NumUnits: a.numUnits,
		Layers:   list.layers,
	}
	payload.Steps = make([]cachedStep, len(a.stepOrder))
	for i, id := range a.stepOrder {
		payload.Steps[i] = cachedStep{ID: id, Deltas: a.deltas[i]}
	}
	payload.Variables = make([]cachedVariable, 0, len(a.vars))
	for id, v := range a.vars {
		payload.Variables = append(payload.Variables, cachedVariable{
			ID: id, Bytes: v.bytes, Unit: v.unit, LiveStart: v.liveStart, LiveEnd: v.liveEnd,
		})
	}
	// Sort map-derived tables so the same list always serializes to the
	// same bytes.
	sort.Slice(payload.Variables, func(i, j int) bool { return payload.Variables[i].ID < payload.Variables[j].ID })
	payload.Operations = make([]cachedOperation, 0, len(list.unique))
	for id, op := range list.unique {
		payload.Operations = append(payload.Operations, cachedOperation{
			ID: id, Steps: op.steps, Variables: op.vars,
		})
	}
	sort.Slice(payload.Operations, func(i, j int) bool { return payload.Operations[i].ID < payload.Operations[j].ID })
	payload.Appearances = make([]cachedAppearance, list.Len())
	for i, named := range list.named {
		payload.Appearances[i] = cachedAppearance{Name: named.Name, Layer: named.Layer, OpID: named.opID}
	}
	return payload
}

func rebuildList(payload *cachePayload) (*OperationList, error) {
	malformed := func(format string, args ...any) error {
		return &profile.MalformedError{Reason: fmt.Sprintf(format, args...)}
	}
	if payload.NumUnits < 1 {
		return nil, malformed("cached target has no resource units")
	}
	a := &Analysis{
		numUnits:  payload.NumUnits,
		stepOrder: make([]int64, len(payload.Steps)),
		stepPos:   make(map[int64]int, len(payload.Steps)),
		deltas:    make([][]profile.UnitDelta, len(payload.Steps)),
		vars:      make(map[int64]varInfo, len(payload.Variables)),
	}
	for i, s := range payload.Steps {
		if i > 0 && s.ID <= payload.Steps[i-1].ID {
			return nil, malformed("cached steps out of order at %d", s.ID)
		}
		a.stepOrder[i] = s.ID
		a.stepPos[s.ID] = i
		a.deltas[i] = s.Deltas
		for _, d := range s.Deltas {
			if d.Unit < 0 || d.Unit >= a.numUnits {
				return nil, malformed("cached step %d touches unit %d, target has %d units", s.ID, d.Unit, a.numUnits)
			}
		}
	}
	for _, v := range payload.Variables {
		if _, dup := a.vars[v.ID]; dup {
			return nil, malformed("duplicate cached variable id %d", v.ID)
		}
		a.vars[v.ID] = varInfo{bytes: v.Bytes, unit: v.Unit, liveStart: v.LiveStart, liveEnd: v.LiveEnd}
	}

	list := &OperationList{
		analysis: a,
		unique:   make(map[int64]*Operation, len(payload.Operations)),
		layers:   payload.Layers,
	}
	for _, c := range payload.Operations {
		if _, dup := list.unique[c.ID]; dup {
			return nil, malformed("duplicate cached operation id %d", c.ID)
		}
		op := newOperation(a, c.ID)
		for _, id := range c.Steps {
			if _, ok := a.stepPos[id]; !ok {
				return nil, malformed("cached operation %d references unknown step %d", c.ID, id)
			}
			op.steps = append(op.steps, id)
		}
		for _, id := range c.Variables {
			if _, ok := a.vars[id]; !ok {
				return nil, malformed("cached operation %d references unknown variable %d", c.ID, id)
			}
			op.varsSeen[id] = struct{}{}
			op.vars = append(op.vars, id)
		}
		list.unique[c.ID] = op
	}
	list.named = make([]*NamedOperation, len(payload.Appearances))
	for i, c := range payload.Appearances {
		if _, ok := list.unique[c.OpID]; !ok {
			return nil, malformed("cached appearance %q references unknown operation %d", c.Name, c.OpID)
		}
		list.named[i] = &NamedOperation{Name: c.Name, Layer: c.Layer, list: list, opID: c.OpID}
	}
	return list, nil
}
