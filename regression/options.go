package regression

import (
	"fmt"

	"github.com/arloliu/eelsfit/internal/options"
)

// AnalyzeConfig selects the candidates Analyze fits.
type AnalyzeConfig struct {
	Candidates      []ModelType
	PolynomialOrder int
}

func defaultAnalyzeConfig() AnalyzeConfig {
	return AnalyzeConfig{
		Candidates:      []ModelType{ModelTypePower, ModelTypeExponential, ModelTypeLinear, ModelTypePolynomial},
		PolynomialOrder: 2,
	}
}

// AnalyzeOption configures Analyze.
type AnalyzeOption = options.Option[*AnalyzeConfig]

// WithCandidates restricts Analyze to the given families.
func WithCandidates(types ...ModelType) AnalyzeOption {
	return options.New(func(cfg *AnalyzeConfig) error {
		if len(types) == 0 {
			return fmt.Errorf("at least one candidate model is required")
		}
		cfg.Candidates = append([]ModelType(nil), types...)

		return nil
	})
}

// WithPolynomialOrder sets the order of the polynomial candidate.
func WithPolynomialOrder(order int) AnalyzeOption {
	return options.New(func(cfg *AnalyzeConfig) error {
		if order < 0 {
			return fmt.Errorf("polynomial order must be >= 0, got %d", order)
		}
		cfg.PolynomialOrder = order

		return nil
	})
}
