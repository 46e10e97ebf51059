package profile

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "format_version": 1,
  "target": {"name": "test-device", "num_units": 4},
  "root": {
    "id": 0,
    "label": "",
    "children": [
      {
        "id": 1,
        "label": "Layer0",
        "steps": [
          {"id": 1, "deltas": [{"unit": 0, "bytes": 100}], "variables": [10]},
          {"id": 2, "deltas": [{"unit": 1, "bytes": -40}]}
        ]
      }
    ]
  },
  "variables": [
    {"id": 10, "name": "weights", "bytes": 64, "unit": 0, "live_start": 1, "live_end": 3}
  ]
}`

func writeProfile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profile.json")
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestLoad_PlainJSON_LoadsCorrectly(t *testing.T) {
	rep, err := Load(writeProfile(t, []byte(sampleJSON)))
	require.NoError(t, err)

	assert.Equal(t, 1, rep.FormatVersion)
	assert.Equal(t, "test-device", rep.Target.Name)
	assert.Equal(t, 4, rep.Target.NumUnits)
	require.NotNil(t, rep.Root)
	require.Len(t, rep.Root.Children, 1)

	layer := rep.Root.Children[0]
	assert.Equal(t, "Layer0", layer.Label)
	require.Len(t, layer.Steps, 2)
	assert.Equal(t, int64(1), layer.Steps[0].ID)
	assert.Equal(t, []UnitDelta{{Unit: 0, Bytes: 100}}, layer.Steps[0].Deltas)
	assert.Equal(t, []int64{10}, layer.Steps[0].Variables)

	require.Len(t, rep.Variables, 1)
	assert.Equal(t, int64(64), rep.Variables[0].Bytes)
	assert.Equal(t, int64(3), rep.Variables[0].LiveEnd)
}

func TestLoad_GzipCompressed_DetectedByContent(t *testing.T) {
	// The file keeps a .json name; only the gzip magic marks it.
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	rep, err := Load(writeProfile(t, buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 4, rep.Target.NumUnits)
}

func TestLoad_MissingFile_Error(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestLoad_NotJSON_MalformedError(t *testing.T) {
	_, err := Load(writeProfile(t, []byte("not json at all")))

	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestLoad_TruncatedGzip_MalformedError(t *testing.T) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	_, err := zw.Write([]byte(sampleJSON))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	truncated := buf.Bytes()[:buf.Len()/2]

	_, err = Load(writeProfile(t, truncated))
	var malformed *MalformedError
	require.ErrorAs(t, err, &malformed)
}

func TestValidate_Violations_MalformedError(t *testing.T) {
	valid := func() *Report {
		return &Report{
			FormatVersion: SupportedFormatVersion,
			Target:        Target{NumUnits: 2},
			Root: &Node{ID: 0, Children: []*Node{
				{ID: 1, Label: "Layer0", Steps: []Step{
					{ID: 1, Deltas: []UnitDelta{{Unit: 0, Bytes: 10}}, Variables: []int64{10}},
				}},
			}},
			Variables: []Variable{{ID: 10, Bytes: 8, Unit: 1, LiveStart: 1, LiveEnd: 2}},
		}
	}
	require.NoError(t, valid().Validate(), "fixture must start valid")

	cases := []struct {
		name   string
		mutate func(*Report)
		want   string
	}{
		{
			name:   "unsupported version",
			mutate: func(r *Report) { r.FormatVersion = 99 },
			want:   "format_version",
		},
		{
			name:   "no units",
			mutate: func(r *Report) { r.Target.NumUnits = 0 },
			want:   "num_units",
		},
		{
			name:   "missing root",
			mutate: func(r *Report) { r.Root = nil },
			want:   "root",
		},
		{
			name: "duplicate step id",
			mutate: func(r *Report) {
				r.Root.Steps = []Step{{ID: 1}}
			},
			want: "duplicate step",
		},
		{
			name: "step unit out of range",
			mutate: func(r *Report) {
				r.Root.Children[0].Steps[0].Deltas[0].Unit = 2
			},
			want: "unit",
		},
		{
			name: "step references unknown variable",
			mutate: func(r *Report) {
				r.Root.Children[0].Steps[0].Variables = []int64{99}
			},
			want: "unknown variable",
		},
		{
			name: "duplicate variable id",
			mutate: func(r *Report) {
				r.Variables = append(r.Variables, Variable{ID: 10, Bytes: 1, LiveEnd: 1})
			},
			want: "duplicate variable",
		},
		{
			name: "negative variable size",
			mutate: func(r *Report) {
				r.Variables[0].Bytes = -1
			},
			want: "negative",
		},
		{
			name: "variable unit out of range",
			mutate: func(r *Report) {
				r.Variables[0].Unit = 5
			},
			want: "unit",
		},
		{
			name: "live range ends before start",
			mutate: func(r *Report) {
				r.Variables[0].LiveEnd = 0
			},
			want: "live range",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rep := valid()
			tc.mutate(rep)
			err := rep.Validate()

			var malformed *MalformedError
			require.ErrorAs(t, err, &malformed)
			assert.Contains(t, err.Error(), tc.want)
			assert.Contains(t, err.Error(), "malformed profile")
		})
	}
}

func TestVisitSteps_OwnStepsBeforeChildren_DepthFirst(t *testing.T) {
	root := &Node{ID: 0, Label: "root",
		Steps: []Step{{ID: 1}},
		Children: []*Node{
			{ID: 1, Label: "a", Steps: []Step{{ID: 2}}, Children: []*Node{
				{ID: 2, Label: "a1", Steps: []Step{{ID: 3}, {ID: 4}}},
			}},
			{ID: 3, Label: "b", Steps: []Step{{ID: 5}}},
		},
	}

	var order []int64
	var stacks []string
	root.VisitSteps(func(stack []*Node, step *Step) {
		order = append(order, step.ID)
		var labels string
		for _, n := range stack {
			labels += "/" + n.Label
		}
		stacks = append(stacks, labels)
	})

	assert.Equal(t, []int64{1, 2, 3, 4, 5}, order)
	assert.Equal(t, []string{
		"/root",
		"/root/a",
		"/root/a/a1",
		"/root/a/a1",
		"/root/b",
	}, stacks)
}

func TestVisitSteps_NilNode_NoCalls(t *testing.T) {
	var n *Node
	called := false
	n.VisitSteps(func([]*Node, *Step) { called = true })
	assert.False(t, called)
}
