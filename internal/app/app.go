// Package app runs the eelsfit command: it fits a signal archive with an HCL
// plan, writes the fitted model archive and records it in a catalogue.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/arloliu/eelsfit/archive"
	"github.com/arloliu/eelsfit/internal/ctxlog"
	"github.com/arloliu/eelsfit/model"
	"github.com/arloliu/eelsfit/plan"
	"github.com/arloliu/eelsfit/signal"
	"github.com/arloliu/eelsfit/store"
)

// App is one configured eelsfit invocation.
type App struct {
	outW   io.Writer
	cfg    *Config
	logger *slog.Logger
}

// NewApp creates an App. Logs go to logW, results to outW.
func NewApp(outW, logW io.Writer, cfg *Config) *App {
	return &App{
		outW:   outW,
		cfg:    cfg,
		logger: NewLogger(cfg.LogLevel, cfg.LogFormat, logW),
	}
}

// Run executes the invocation.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	if a.cfg.List {
		return a.list(ctx)
	}

	return a.fit(ctx)
}

func (a *App) fit(ctx context.Context) error {
	start := time.Now()
	target, err := readSignal(a.cfg.SignalPath)
	if err != nil {
		return err
	}
	a.logger.Info("Signal loaded.", "path", a.cfg.SignalPath, "nav", target.NavShape(), "axis", target.Axis().Describe())

	mopts := []model.Option{model.WithLogger(a.logger)}
	if a.cfg.Workers > 0 {
		mopts = append(mopts, model.WithWorkers(a.cfg.Workers))
	}
	if a.cfg.LowLossPath != "" {
		ll, err := readSignal(a.cfg.LowLossPath)
		if err != nil {
			return err
		}
		mopts = append(mopts, model.WithLowLoss(ll))
	}

	p, err := plan.ParseFile(ctx, a.cfg.PlanPath, plan.WithVariables(a.cfg.Variables))
	if err != nil {
		return err
	}
	m, err := p.Build(target, nil, mopts...)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}

	results, err := p.Run(ctx, m)
	for _, r := range results {
		if r.Report == nil {
			fmt.Fprintf(a.outW, "stage %-16s %d estimate failures in %s\n", r.Name, r.EstimateFailures, r.Duration)
			continue
		}
		fmt.Fprintf(a.outW, "stage %-16s %s\n", r.Name, r.Report)
	}
	if err != nil {
		return err
	}

	data, err := archive.SaveModel(m, archive.WithCompression(a.cfg.Compression), archive.WithLogger(a.logger))
	if err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	if a.cfg.OutPath != "" {
		if err := os.WriteFile(a.cfg.OutPath, data, 0o600); err != nil {
			return fmt.Errorf("write model: %w", err)
		}
		fmt.Fprintf(a.outW, "model written to %s (%d bytes)\n", a.cfg.OutPath, len(data))
	}

	if a.cfg.CataloguePath != "" {
		id, err := a.record(ctx, data, results)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.outW, "catalogued as %s\n", id)
	}

	a.logger.Info("Fit complete.", "stages", len(results), "duration", time.Since(start))

	return nil
}

func (a *App) record(ctx context.Context, data []byte, results []plan.StageResult) (string, error) {
	s, err := store.NewStore(a.cfg.CataloguePath)
	if err != nil {
		return "", err
	}
	defer s.Close()

	stages := make([]store.StageSummary, 0, len(results))
	for _, r := range results {
		if r.Report == nil {
			continue
		}
		stages = append(stages, store.StageSummary{
			Stage:        r.Name,
			Converged:    r.Report.Converged,
			NotConverged: r.Report.NotConverged,
			Failed:       r.Report.Failed,
			Skipped:      r.Report.Skipped,
			TotalCost:    r.Report.TotalCost(),
			Duration:     r.Duration,
		})
	}

	rec, err := s.Put(ctx, store.Entry{
		Name: a.cfg.Name,
		Data: data,
		Labels: map[string]string{
			"signal": a.cfg.SignalPath,
			"plan":   a.cfg.PlanPath,
		},
		Stages: stages,
	})
	if err != nil {
		return "", fmt.Errorf("catalogue: %w", err)
	}

	return rec.ID, nil
}

func (a *App) list(ctx context.Context) error {
	s, err := store.NewStore(a.cfg.CataloguePath)
	if err != nil {
		return err
	}
	defer s.Close()

	records, err := s.List(ctx, a.cfg.Name)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.outW, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tKIND\tPIXELS\tCHANNELS\tCOMPONENTS\tCREATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.ID, r.Name, r.Kind, r.NavSize, r.Channels, r.Components, r.CreatedAt.Format(time.RFC3339))
	}

	return tw.Flush()
}

func readSignal(path string) (*signal.Signal, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signal: %w", err)
	}
	s, err := archive.LoadSignal(data)
	if err != nil {
		return nil, fmt.Errorf("load signal %s: %w", path, err)
	}

	return s, nil
}
