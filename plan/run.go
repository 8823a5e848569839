package plan

import (
	"context"
	"fmt"
	"time"

	"github.com/arloliu/eelsfit/internal/ctxlog"
	"github.com/arloliu/eelsfit/model"
)

// StageResult is the outcome of one stage.
type StageResult struct {
	Name string
	// Report is nil for stages with fit = false.
	Report *model.FitReport
	// EstimateFailures counts pixels whose closed-form estimate failed.
	EstimateFailures int
	Duration         time.Duration
}

// Run executes the stages in order on m. It stops at the first stage error;
// the results of completed stages are returned with it. A cancelled fit
// returns its partial report as the last result.
func (p *Plan) Run(ctx context.Context, m *model.Model) ([]StageResult, error) {
	logger := ctxlog.FromContext(ctx)
	names := make(map[string]bool)
	for _, c := range m.Components() {
		names[c.Name()] = true
	}

	results := make([]StageResult, 0, len(p.Stages))
	for _, s := range p.Stages {
		logger.Info("Running stage.", "stage", s.Name)
		res, err := s.run(ctx, m, names)
		if res != nil {
			results = append(results, *res)
		}
		if err != nil {
			return results, fmt.Errorf("stage %q: %w", s.Name, err)
		}
		if res.Report != nil {
			logger.Info("Stage finished.", "stage", s.Name, "summary", res.Report.String())
		}
	}

	return results, nil
}

func (s *StageBlock) run(ctx context.Context, m *model.Model, names map[string]bool) (*StageResult, error) {
	start := time.Now()
	res := &StageResult{Name: s.Name}

	if s.ResetRange {
		if err := m.ResetSignalRange(); err != nil {
			return nil, err
		}
	}
	if s.SignalRange != nil {
		lo, hi, err := window(s.SignalRange)
		if err != nil {
			return nil, err
		}
		if err := m.SetSignalRange(lo, hi); err != nil {
			return nil, err
		}
	}

	if s.Active != nil {
		if err := m.SetComponentActiveValue(false); err != nil {
			return nil, err
		}
		if len(s.Active) > 0 {
			if err := m.SetComponentActiveValue(true, s.Active...); err != nil {
				return nil, err
			}
		}
	}

	if err := setFree(m, false, s.Freeze, names); err != nil {
		return nil, err
	}
	if err := setFree(m, true, s.Free, names); err != nil {
		return nil, err
	}

	for _, e := range s.Estimates {
		lo, hi, err := window(e.Range)
		if err != nil {
			return nil, err
		}
		failed, err := m.EstimateComponent(ctx, e.Component, lo, hi)
		res.EstimateFailures += failed
		if err != nil {
			return nil, err
		}
	}

	if s.Fit == nil || *s.Fit {
		bounded := s.Bounded == nil || *s.Bounded
		report, err := m.Multifit(ctx, bounded)
		res.Report = report
		res.Duration = time.Since(start)
		if err != nil {
			if report != nil {
				return res, err
			}

			return nil, err
		}
	}
	res.Duration = time.Since(start)

	return res, nil
}

func setFree(m *model.Model, free bool, refs []string, names map[string]bool) error {
	for _, ref := range refs {
		comp, param := splitRef(ref, names)
		var err error
		if param == "" {
			err = m.SetParametersFree(free, comp)
		} else {
			err = m.SetParametersFree(free, comp, param)
		}
		if err != nil {
			return err
		}
	}

	return nil
}
