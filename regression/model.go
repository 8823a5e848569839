package regression

import "fmt"

// Model is a fitted curve with its goodness-of-fit statistics.
type Model struct {
	// Type is the curve family.
	Type ModelType
	// Coefficients holds the fitted coefficients in the order documented on each
	// estimator.
	Coefficients []float64
	// RSquared is the coefficient of determination on the samples used.
	RSquared float64
	// RMSE is the root mean square error on the samples used.
	RMSE float64
	// Formula is a human-readable rendering of the fitted curve.
	Formula string
	// Estimator evaluates the fitted curve.
	Estimator Estimator
}

// String returns a one-line summary.
func (m *Model) String() string {
	return fmt.Sprintf("Model{Type: %s, R²: %.4f, RMSE: %.4g, Formula: %s}",
		m.Type, m.RSquared, m.RMSE, m.Formula)
}

// Result is the outcome of Analyze.
type Result struct {
	// BestFit is the candidate with the highest R².
	BestFit *Model
	// AllModels holds every candidate that could be fitted, best first.
	AllModels []*Model
}

// String returns a one-line summary.
func (r *Result) String() string {
	if r.BestFit == nil {
		return "Result{BestFit: nil}"
	}

	return fmt.Sprintf("Result{BestFit: %s, TotalModels: %d}", r.BestFit, len(r.AllModels))
}
