package spreadsheet

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"

	"github.com/graphcore/popliner/planner"
)

// WriteOperations renders the operation breakdown, one row per appearance
// in walk order. comma selects the delimiter (',' or '\t'). limit caps the
// number of rows; limit <= 0 renders every appearance.
func WriteOperations(w io.Writer, list *planner.OperationList, comma rune, limit int) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	fields := OperationFields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	n := list.Len()
	if limit > 0 && limit < n {
		n = limit
	}
	row := make([]string, len(fields))
	for i := 0; i < n; i++ {
		op := list.At(i)
		for j, f := range fields {
			row[j] = f.Value(op)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteLayers renders the layer breakdown, one row per layer in discovery
// order. Each layer is aggregated through a scratch stage, so steps and
// variables shared inside the layer are counted once. Unnamed operations
// belong to no layer and do not appear.
func WriteLayers(w io.Writer, list *planner.OperationList, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	fields := LayerFields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(fields))
	for _, layer := range list.Layers() {
		stage := planner.NewStage(list.Analysis())
		for i := 0; i < list.Len(); i++ {
			if op := list.At(i); op.Layer == layer {
				stage.Add(op)
			}
		}
		for j, f := range fields {
			row[j] = f.Value(layer, stage)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteSplits renders the stage partition, one row per stage in device
// order.
func WriteSplits(w io.Writer, stages []*planner.Stage, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	fields := SplitFields()
	header := make([]string, len(fields))
	for i, f := range fields {
		header[i] = f.Name
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	row := make([]string, len(fields))
	for i, stage := range stages {
		for j, f := range fields {
			row[j] = f.Value(i, stage)
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTotals renders the memory totals of one stage: a summary row
// followed by the per-unit peaks of the first maxUnits units (all units when
// maxUnits <= 0).
func WriteTotals(w io.Writer, stage *planner.Stage, comma rune, maxUnits int) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	if err := cw.Write([]string{"Total peak", "Max unit peak", "Variable bytes"}); err != nil {
		return err
	}
	summary := []string{
		strconv.FormatInt(stage.TotalPeakBytes(), 10),
		strconv.FormatInt(stage.MaxUnitPeak(), 10),
		strconv.FormatInt(stage.VariableBytes(), 10),
	}
	if err := cw.Write(summary); err != nil {
		return err
	}
	peak := stage.PeakMemoryPerUnit()
	n := len(peak)
	if maxUnits > 0 && maxUnits < n {
		n = maxUnits
	}
	header := make([]string, 0, n+1)
	row := make([]string, 0, n+1)
	header = append(header, "Unit")
	row = append(row, "Peak bytes")
	for i := 0; i < n; i++ {
		header = append(header, strconv.Itoa(i))
		row = append(row, strconv.FormatInt(peak[i], 10))
	}
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.Write(row); err != nil {
		return err
	}
	cw.Flush()
	return cw.Error()
}

// WriteMatrix renders a layer-by-layer diagnostic matrix with layer headers
// on both axes.
func WriteMatrix(w io.Writer, layers []string, matrix [][]int64, comma rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = comma
	header := append([]string{"Layer"}, layers...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, layer := range layers {
		row := make([]string, 0, len(layers)+1)
		row = append(row, layer)
		for _, v := range matrix[i] {
			row = append(row, strconv.FormatInt(v, 10))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SplitMemory is the memory block of one stage in the JSON summary.
type SplitMemory struct {
	TotalBytes    int64 `json:"total_mem"`
	MaxUnitBytes  int64 `json:"max_unit_mem"`
	VariableBytes int64 `json:"variables"`
}

// SplitSummary is one stage of the partition in the JSON summary.
type SplitSummary struct {
	Stage      int         `json:"stage"`
	LayerFrom  string      `json:"layer_from"`
	LayerTo    string      `json:"layer_to"`
	Operations int         `json:"operations"`
	Steps      int         `json:"steps"`
	Mem        SplitMemory `json:"mem"`
}

// SplitsJSON renders the stage partition as indented JSON.
func SplitsJSON(stages []*planner.Stage) ([]byte, error) {
	summaries := make([]SplitSummary, len(stages))
	for i, stage := range stages {
		summaries[i] = SplitSummary{
			Stage:      i,
			LayerFrom:  stage.FirstLayer(),
			LayerTo:    stage.LastLayer(),
			Operations: stage.Len(),
			Steps:      stage.StepCount(),
			Mem: SplitMemory{
				TotalBytes:    stage.TotalPeakBytes(),
				MaxUnitBytes:  stage.MaxUnitPeak(),
				VariableBytes: stage.VariableBytes(),
			},
		}
	}
	return json.MarshalIndent(summaries, "", "    ")
}
