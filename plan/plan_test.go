package plan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/arloliu/eelsfit/component"
	"github.com/arloliu/eelsfit/edges"
	"github.com/arloliu/eelsfit/errs"
	"github.com/arloliu/eelsfit/signal"
)

const stagedPlan = `
microscope {
  beam_energy = 200
  convergence = 10
  collection  = 50
}

fitter {
  method         = "lm"
  max_iterations = 300
  workers        = 2
  timeout        = "5s"
}

component "PowerLaw" "bg" {
  parameter "A" {
    min = 0
  }
}

edge "Cu" "L3" {
  onset = var.cu_onset
  parameter "intensity" {
    value = 1
    min   = 0
    max   = max(100, var.cu_onset / 10)
  }
  parameter "width" {
    value = 0.01
  }
}

stage "background" {
  signal_range = [400, 480]
  active       = ["bg"]
  estimate "bg" {
    range = [400, 480]
  }
}

stage "edges" {
  reset_range = true
  active      = ["bg", "Cu_L3"]
  freeze      = ["bg"]
}
`

var vars = WithVariables(map[string]cty.Value{"cu_onset": cty.NumberFloatVal(500)})

func TestParse_DecodesBlocks(t *testing.T) {
	p, err := Parse([]byte(stagedPlan), "staged.hcl", vars)
	require.NoError(t, err)

	require.Equal(t, 200.0, p.Microscope.BeamEnergy)
	require.Equal(t, "lm", p.Fitter.Method)
	require.Equal(t, 300, *p.Fitter.MaxIterations)
	require.Len(t, p.Components, 1)
	require.Equal(t, "PowerLaw", p.Components[0].Kind)
	require.Len(t, p.Edges, 1)
	require.Equal(t, 500.0, *p.Edges[0].Onset)
	require.Equal(t, 100.0, *p.Edges[0].Parameters[0].Max)
	require.Len(t, p.Stages, 2)
	require.Equal(t, []float64{400, 480}, p.Stages[0].SignalRange)
	require.True(t, p.Stages[1].ResetRange)
	require.Equal(t, []string{"bg"}, p.Stages[1].Freeze)
}

func TestParse_Validation(t *testing.T) {
	cases := map[string]struct {
		src  string
		want error
	}{
		"unknown stage component": {
			src:  `stage "s" { active = ["nope"] }`,
			want: errs.ErrUnknownComponent,
		},
		"duplicate component": {
			src:  `component "Offset" "a" {}` + "\n" + `component "Gaussian" "a" {}`,
			want: errs.ErrDuplicateComponent,
		},
		"edge without microscope": {
			src:  `edge "O" "K" { onset = 532 }`,
			want: errs.ErrInvalidConfig,
		},
		"bad method": {
			src:  `fitter { method = "simulated-annealing" }`,
			want: errs.ErrInvalidConfig,
		},
		"inverted range": {
			src:  `component "Offset" "a" {}` + "\n" + `stage "s" { signal_range = [10, 5] }`,
			want: errs.ErrInvalidRange,
		},
		"bad timeout": {
			src:  `fitter { timeout = "soon" }`,
			want: errs.ErrInvalidConfig,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(tc.src), "bad.hcl")
			require.ErrorIs(t, err, tc.want)
		})
	}

	_, err := Parse([]byte(`stage "s" {`), "broken.hcl")
	require.Error(t, err)
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.hcl")
	require.NoError(t, os.WriteFile(path, []byte(stagedPlan), 0o600))

	p, err := ParseFile(context.Background(), path, vars)
	require.NoError(t, err)
	require.Len(t, p.Stages, 2)

	_, err = ParseFile(context.Background(), filepath.Join(t.TempDir(), "missing.hcl"))
	require.Error(t, err)
}

func TestBuild_ComponentsAndFitter(t *testing.T) {
	src := `
fitter {
  method  = "nelder-mead"
  workers = 3
  ftol    = 1e-8
}

component "Polynomial" "poly" {
  config = [2]
  active = false
}

component "Gaussian" "peak" {
  parameter "centre" {
    value = 10
    free  = false
  }
}
`
	p, err := Parse([]byte(src), "build.hcl")
	require.NoError(t, err)

	comps, err := p.BuildComponents(nil)
	require.NoError(t, err)
	require.Len(t, comps, 2)
	require.Len(t, comps[0].Parameters(), 3)
	require.False(t, comps[0].Active())

	centre, err := comps[1].Parameter("centre")
	require.NoError(t, err)
	require.Equal(t, 10.0, centre.Value())
	require.False(t, centre.Free())

	opts, err := p.ModelOptions()
	require.NoError(t, err)
	require.Len(t, opts, 2)

	s, err := signal.New(make([]float64, 20), nil, signal.NewEnergyAxis(0, 1, 20))
	require.NoError(t, err)
	m, err := p.Build(s, nil)
	require.NoError(t, err)
	require.Len(t, m.Components(), 2)

	bad, err := Parse([]byte(`component "Offset" "o" { convolved = true }`), "c.hcl")
	require.NoError(t, err)
	_, err = bad.BuildComponents(nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	unknown, err := Parse([]byte(`component "Spline" "s" {}`), "k.hcl")
	require.NoError(t, err)
	_, err = unknown.BuildComponents(nil)
	require.ErrorIs(t, err, errs.ErrUnknownKind)
}

// stagedSignal is a power-law background plus a Cu L3 edge at 500 eV.
func stagedSignal(t *testing.T) *signal.Signal {
	t.Helper()

	bg := component.NewPowerLaw("bg")
	edge := component.NewEdge("Cu_L3", 500)
	s, err := signal.Generate([]int{2, 2}, signal.NewEnergyAxis(400, 1, 200), func(index int, energy, dst []float64) {
		scale := 1 + 0.25*float64(index)
		bgv := make([]float64, len(energy))
		bg.Function(energy, []float64{1e9 * scale, 3, 0}, bgv)
		edge.Function(energy, []float64{10 * scale, 500, 3, 0.01}, dst)
		for i := range dst {
			dst[i] += bgv[i]
		}
	})
	require.NoError(t, err)

	return s
}

func TestRun_StagedFit(t *testing.T) {
	p, err := Parse([]byte(stagedPlan), "staged.hcl", vars)
	require.NoError(t, err)

	m, err := p.Build(stagedSignal(t), nil)
	require.NoError(t, err)

	results, err := p.Run(context.Background(), m)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "background", results[0].Name)
	require.Zero(t, results[0].EstimateFailures)
	require.True(t, results[0].Report.AllConverged(), results[0].Report.String())
	require.True(t, results[1].Report.AllConverged(), results[1].Report.String())

	full := make([]bool, 200)
	for i := range full {
		full[i] = true
	}
	require.Equal(t, full, m.SignalMask())

	for i := range m.NavSize() {
		coord := m.Target().Coord(i)
		scale := 1 + 0.25*float64(i)

		a, err := m.PixelValue("bg", "A", coord)
		require.NoError(t, err)
		require.InEpsilon(t, 1e9*scale, a.Value, 2e-3)

		intensity, err := m.PixelValue("Cu_L3", "intensity", coord)
		require.NoError(t, err)
		require.InEpsilon(t, 10*scale, intensity.Value, 2e-3)
	}

	r, err := m.Parameter("bg", "r")
	require.NoError(t, err)
	require.False(t, r.Free(), "frozen by the edges stage")
}

func TestRun_StopsAtFailingStage(t *testing.T) {
	src := `
component "Offset" "o" {}

stage "ok" {
  fit = false
}

stage "empty" {
  signal_range = [5000, 6000]
}
`
	p, err := Parse([]byte(src), "fail.hcl")
	require.NoError(t, err)

	s, err := signal.New(make([]float64, 10), nil, signal.NewEnergyAxis(0, 1, 10))
	require.NoError(t, err)
	m, err := p.Build(s, nil)
	require.NoError(t, err)

	results, err := p.Run(context.Background(), m)
	require.ErrorIs(t, err, errs.ErrEmptySignalRange)
	require.Len(t, results, 1)
	require.Nil(t, results[0].Report)
}

func TestRun_CancelledFitReturnsPartialReport(t *testing.T) {
	src := `
component "Offset" "o" {}

stage "only" {}
`
	p, err := Parse([]byte(src), "cancel.hcl")
	require.NoError(t, err)
	m, err := p.Build(stagedSignal(t), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := p.Run(ctx, m)
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, results, 1)
	require.Equal(t, 4, results[0].Report.Skipped)
	require.False(t, m.Busy())
}

func TestBuild_OnsetOverridesProvider(t *testing.T) {
	src := `
microscope {
  beam_energy = 300
  collection  = 20
}

edge "Zn" "L3" {}
`
	p, err := Parse([]byte(src), "edges.hcl")
	require.NoError(t, err)

	_, err = p.BuildComponents(nil)
	require.ErrorIs(t, err, errs.ErrInvalidConfig)

	comps, err := p.BuildComponents(edgeTable{"Zn_L3": 1020})
	require.NoError(t, err)
	require.Equal(t, "Zn_L3", comps[0].Name())
	onset, err := comps[0].Parameter("onset")
	require.NoError(t, err)
	require.Equal(t, 1020.0, onset.Value())
	require.Equal(t, 300.0, p.MicroscopeSettings().BeamEnergy)
}

// edgeTable is a minimal provider keyed by edge name.
type edgeTable map[string]float64

func (e edgeTable) EdgeComponent(element, shell string, _ edges.Microscope) (component.Component, error) {
	name := edges.EdgeName(element, shell)
	onset, ok := e[name]
	if !ok {
		return nil, errs.ErrUnknownComponent
	}

	return component.NewEdge(name, onset), nil
}
