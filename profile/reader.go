package profile

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// MalformedError reports a profile whose contents violate the data-model
// invariants. It is fatal: no attempt is made to repair or skip bad records.
type MalformedError struct {
	Reason string
}

func (e *MalformedError) Error() string {
	return "malformed profile: " + e.Reason
}

func malformedf(format string, args ...any) *MalformedError {
	return &MalformedError{Reason: fmt.Sprintf(format, args...)}
}

var gzipMagic = []byte{0x1f, 0x8b}

// Load reads a report from path. The file may be plain JSON or gzip
// compressed JSON; compression is detected from the file contents, not the
// extension. The returned report has passed Validate.
func Load(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile: %w", err)
	}
	if bytes.HasPrefix(data, gzipMagic) {
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, malformedf("bad gzip header in %q: %v", path, err)
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, malformedf("decompressing %q: %v", path, err)
		}
		if err := zr.Close(); err != nil {
			return nil, malformedf("decompressing %q: %v", path, err)
		}
	}
	var rep Report
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, malformedf("decoding %q: %v", path, err)
	}
	if err := rep.Validate(); err != nil {
		return nil, err
	}
	return &rep, nil
}

// Validate checks the report against the data-model invariants: a supported
// format version, a positive unit count, unique step and variable IDs, unit
// indexes within the target's range, sane live intervals, and step variable
// references that resolve in the variable table. The first violation found
// is returned as a *MalformedError.
func (r *Report) Validate() error {
	if r.FormatVersion != SupportedFormatVersion {
		return malformedf("unsupported format_version %d, want %d", r.FormatVersion, SupportedFormatVersion)
	}
	if r.Target.NumUnits < 1 {
		return malformedf("target.num_units must be >= 1, got %d", r.Target.NumUnits)
	}
	if r.Root == nil {
		return malformedf("missing debug-context root")
	}

	vars := make(map[int64]struct{}, len(r.Variables))
	for _, v := range r.Variables {
		if _, dup := vars[v.ID]; dup {
			return malformedf("duplicate variable id %d", v.ID)
		}
		vars[v.ID] = struct{}{}
		if v.Bytes < 0 {
			return malformedf("variable %d has negative size %d", v.ID, v.Bytes)
		}
		if v.Unit < 0 || v.Unit >= r.Target.NumUnits {
			return malformedf("variable %d on unit %d, target has %d units", v.ID, v.Unit, r.Target.NumUnits)
		}
		if v.LiveEnd < v.LiveStart {
			return malformedf("variable %d live range ends (%d) before it starts (%d)", v.ID, v.LiveEnd, v.LiveStart)
		}
	}

	steps := make(map[int64]struct{})
	var stepErr error
	r.Root.VisitSteps(func(_ []*Node, step *Step) {
		if stepErr != nil {
			return
		}
		if _, dup := steps[step.ID]; dup {
			stepErr = malformedf("duplicate step id %d", step.ID)
			return
		}
		steps[step.ID] = struct{}{}
		for _, d := range step.Deltas {
			if d.Unit < 0 || d.Unit >= r.Target.NumUnits {
				stepErr = malformedf("step %d touches unit %d, target has %d units", step.ID, d.Unit, r.Target.NumUnits)
				return
			}
		}
		for _, id := range step.Variables {
			if _, ok := vars[id]; !ok {
				stepErr = malformedf("step %d references unknown variable %d", step.ID, id)
				return
			}
		}
	})
	return stepErr
}
