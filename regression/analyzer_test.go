package regression

import (
	"math"
	"testing"

	"github.com/arloliu/eelsfit/errs"
	"github.com/stretchr/testify/require"
)

func sample(n int, x0, dx float64, f func(float64) float64) (xs, ys []float64) {
	xs = make([]float64, n)
	ys = make([]float64, n)
	for i := range n {
		xs[i] = x0 + float64(i)*dx
		ys[i] = f(xs[i])
	}

	return xs, ys
}

func TestFitPowerRecoversCoefficients(t *testing.T) {
	x, y := sample(200, 300, 1, func(e float64) float64 { return 1e10 * math.Pow(e, -3.2) })

	m, err := FitPower(x, y)
	require.NoError(t, err)
	require.Equal(t, ModelTypePower, m.Type)
	require.InEpsilon(t, 1e10, m.Coefficients[0], 1e-6)
	require.InDelta(t, 3.2, m.Coefficients[1], 1e-9)
	require.InDelta(t, 1.0, m.RSquared, 1e-9)
	require.InEpsilon(t, y[10], m.Estimator.Estimate(x[10]), 1e-9)
}

func TestFitPowerSkipsNonPositive(t *testing.T) {
	x, y := sample(50, 100, 2, func(e float64) float64 { return 5e6 * math.Pow(e, -2) })
	y[3] = 0
	y[7] = -4

	m, err := FitPower(x, y)
	require.NoError(t, err)
	require.InDelta(t, 2.0, m.Coefficients[1], 1e-9)
}

func TestFitPowerNotEstimable(t *testing.T) {
	_, err := FitPower([]float64{1, 2, 3}, []float64{0, -1, 5})
	require.ErrorIs(t, err, errs.ErrNotEstimable)

	_, err = FitPower([]float64{1, 2}, []float64{1})
	require.ErrorIs(t, err, errs.ErrDimensionMismatch)
}

func TestFitExponential(t *testing.T) {
	x, y := sample(100, 0, 0.5, func(e float64) float64 { return 250 * math.Exp(-e/12) })

	m, err := FitExponential(x, y)
	require.NoError(t, err)
	require.InEpsilon(t, 250, m.Coefficients[0], 1e-9)
	require.InEpsilon(t, 12, m.Coefficients[1], 1e-9)
}

func TestFitLinear(t *testing.T) {
	x, y := sample(10, 0, 1, func(e float64) float64 { return 3 - 0.5*e })

	m, err := FitLinear(x, y)
	require.NoError(t, err)
	require.InDelta(t, 3, m.Coefficients[0], 1e-12)
	require.InDelta(t, -0.5, m.Coefficients[1], 1e-12)

	_, err = FitLinear([]float64{2, 2, 2}, []float64{1, 2, 3})
	require.ErrorIs(t, err, errs.ErrNotEstimable)
}

func TestFitPolynomial(t *testing.T) {
	x, y := sample(40, -2, 0.1, func(e float64) float64 { return 1 - 2*e + 0.5*e*e })

	m, err := FitPolynomial(x, y, 2)
	require.NoError(t, err)
	require.Len(t, m.Coefficients, 3)
	require.InDelta(t, 1, m.Coefficients[0], 1e-9)
	require.InDelta(t, -2, m.Coefficients[1], 1e-9)
	require.InDelta(t, 0.5, m.Coefficients[2], 1e-9)
	require.Contains(t, m.Formula, "x^2")

	_, err = FitPolynomial([]float64{1, 2}, []float64{1, 2}, 2)
	require.ErrorIs(t, err, errs.ErrNotEstimable)

	_, err = FitPolynomial(x, y, -1)
	require.Error(t, err)
}

func TestAnalyzeRanksByRSquared(t *testing.T) {
	x, y := sample(120, 400, 1, func(e float64) float64 { return 2e9 * math.Pow(e, -2.7) })

	result, err := Analyze(x, y)
	require.NoError(t, err)
	require.Len(t, result.AllModels, 4)
	require.Same(t, result.BestFit, result.AllModels[0])
	require.Equal(t, ModelTypePower, result.BestFit.Type)

	for i := 1; i < len(result.AllModels); i++ {
		require.GreaterOrEqual(t, result.AllModels[i-1].RSquared, result.AllModels[i].RSquared)
	}
	require.Contains(t, result.String(), "power")
}

func TestAnalyzeOptions(t *testing.T) {
	x, y := sample(30, 1, 1, func(e float64) float64 { return -e })

	// Power and exponential cannot fit all-negative data.
	result, err := Analyze(x, y, WithCandidates(ModelTypePower, ModelTypeLinear))
	require.NoError(t, err)
	require.Len(t, result.AllModels, 1)
	require.Equal(t, ModelTypeLinear, result.BestFit.Type)

	_, err = Analyze(x, y, WithCandidates(ModelTypePower))
	require.ErrorIs(t, err, errs.ErrNotEstimable)

	_, err = Analyze(x, y, WithCandidates())
	require.Error(t, err)

	_, err = Analyze(x, y, WithPolynomialOrder(-2))
	require.Error(t, err)

	_, err = Analyze(x[:1], y[:1])
	require.ErrorIs(t, err, errs.ErrNotEstimable)
}

func TestEstimators(t *testing.T) {
	e, err := NewEstimator(ModelTypePolynomial, []float64{1, 0, 2})
	require.NoError(t, err)
	require.Equal(t, 19.0, e.Estimate(3))
	require.Equal(t, []float64{1, 0, 2}, e.Coefficients())

	_, err = NewEstimator(ModelTypePower, []float64{1})
	require.Error(t, err)

	_, err = NewEstimator(ModelType(42), nil)
	require.Error(t, err)

	require.True(t, math.IsNaN(NewPowerEstimator(1, 1).Estimate(0)))
	require.Equal(t, ModelTypeExponential, ModelTypeFromString("Exponential"))
	require.Equal(t, ModelType(-1), ModelTypeFromString("hyperbolic"))
	require.Equal(t, "unknown", ModelType(9).String())
}
