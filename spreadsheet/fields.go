// Package spreadsheet renders operation lists and stage partitions as
// delimited tables and JSON. The planner does not depend on any of this;
// rendering consumes the finished data model only.
package spreadsheet

import (
	"strconv"

	"github.com/graphcore/popliner/planner"
)

// Field is one column of the per-operation breakdown: a header and a
// function evaluating the cell for an appearance.
type Field struct {
	Name  string
	Value func(op *planner.NamedOperation) string
}

// OperationFields returns the columns of the operation breakdown in
// rendering order.
func OperationFields() []Field {
	return []Field{
		{Name: "Layer", Value: func(op *planner.NamedOperation) string {
			return op.Layer
		}},
		{Name: "Name", Value: func(op *planner.NamedOperation) string {
			return op.Name
		}},
		{Name: "Steps", Value: func(op *planner.NamedOperation) string {
			return strconv.Itoa(op.Operation().StepCount())
		}},
		{Name: "Peak bytes", Value: func(op *planner.NamedOperation) string {
			return strconv.FormatInt(op.Operation().PeakBytes(), 10)
		}},
		{Name: "Variable bytes", Value: func(op *planner.NamedOperation) string {
			return strconv.FormatInt(op.Operation().AllocatedBytes(), 10)
		}},
	}
}

// LayerField is one column of the per-layer breakdown. Cells are evaluated
// against a stage holding every operation of the layer, so shared steps and
// variables are already deduplicated.
type LayerField struct {
	Name  string
	Value func(layer string, stage *planner.Stage) string
}

// LayerFields returns the columns of the layer breakdown in rendering order.
func LayerFields() []LayerField {
	return []LayerField{
		{Name: "Layer", Value: func(layer string, _ *planner.Stage) string {
			return layer
		}},
		{Name: "Operations", Value: func(_ string, stage *planner.Stage) string {
			return strconv.Itoa(stage.Len())
		}},
		{Name: "Steps", Value: func(_ string, stage *planner.Stage) string {
			return strconv.Itoa(stage.StepCount())
		}},
		{Name: "Max unit peak", Value: func(_ string, stage *planner.Stage) string {
			return strconv.FormatInt(stage.MaxUnitPeak(), 10)
		}},
		{Name: "Total peak", Value: func(_ string, stage *planner.Stage) string {
			return strconv.FormatInt(stage.TotalPeakBytes(), 10)
		}},
		{Name: "Variable bytes", Value: func(_ string, stage *planner.Stage) string {
			return strconv.FormatInt(stage.VariableBytes(), 10)
		}},
	}
}

// SplitField is one column of the stage partition table.
type SplitField struct {
	Name  string
	Value func(index int, stage *planner.Stage) string
}

// SplitFields returns the columns of the partition table in rendering order.
func SplitFields() []SplitField {
	return []SplitField{
		{Name: "Stage", Value: func(index int, _ *planner.Stage) string {
			return strconv.Itoa(index)
		}},
		{Name: "First layer", Value: func(_ int, stage *planner.Stage) string {
			return stage.FirstLayer()
		}},
		{Name: "Last layer", Value: func(_ int, stage *planner.Stage) string {
			return stage.LastLayer()
		}},
		{Name: "Operations", Value: func(_ int, stage *planner.Stage) string {
			return strconv.Itoa(stage.Len())
		}},
		{Name: "Steps", Value: func(_ int, stage *planner.Stage) string {
			return strconv.Itoa(stage.StepCount())
		}},
		{Name: "Max unit peak", Value: func(_ int, stage *planner.Stage) string {
			return strconv.FormatInt(stage.MaxUnitPeak(), 10)
		}},
		{Name: "Total peak", Value: func(_ int, stage *planner.Stage) string {
			return strconv.FormatInt(stage.TotalPeakBytes(), 10)
		}},
		{Name: "Variable bytes", Value: func(_ int, stage *planner.Stage) string {
			return strconv.FormatInt(stage.VariableBytes(), 10)
		}},
	}
}
