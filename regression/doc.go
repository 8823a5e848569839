// Package regression provides closed-form least-squares fits used to seed
// nonlinear fits with good starting values.
//
// Background components are estimated from a pre-edge window before the full
// model is fitted. The shapes supported here have linearizing transforms, so
// a single pass of linear least squares gives usable coefficients:
//
//   - Power: y = A · x^(−r), fitted as ln y = ln A − r·ln x
//   - Exponential: y = A · e^(−x/τ), fitted as ln y = ln A − x/τ
//   - Linear: y = a + b·x
//   - Polynomial: y = a0 + a1·x + … + an·xⁿ, solved by QR on the Vandermonde matrix
//
// Power and exponential fits drop non-positive samples (their logarithm is
// undefined); they fail with errs.ErrNotEstimable when fewer than two remain.
//
// # Basic usage
//
//	m, err := regression.FitPower(energy[lo:hi], counts[lo:hi])
//	if err != nil {
//	    return err
//	}
//	A, r := m.Coefficients[0], m.Coefficients[1]
//
// # Model selection
//
// Analyze fits every candidate and ranks them by R²:
//
//	result, err := regression.Analyze(energy, counts, regression.WithPolynomialOrder(3))
//	fmt.Println(result.BestFit.Formula)
package regression
