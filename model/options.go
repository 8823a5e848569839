package model

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/arloliu/eelsfit/fit"
	"github.com/arloliu/eelsfit/internal/options"
	"github.com/arloliu/eelsfit/signal"
)

// Config holds the model settings fixed at construction.
type Config struct {
	// Workers is the number of goroutines used by Multifit.
	Workers int
	// Logger receives progress and per-pixel diagnostics.
	Logger *slog.Logger
	// Fitter solves each pixel. Defaults to a LevenbergMarquardt with
	// fit.DefaultConfig.
	Fitter fit.Fitter
	// LowLoss, when set, is convolved with every Convolvable component that
	// has convolution enabled.
	LowLoss *signal.Signal
}

func defaultConfig() Config {
	return Config{
		Workers: runtime.GOMAXPROCS(0),
		Logger:  slog.New(slog.DiscardHandler),
	}
}

// Option configures a Model.
type Option = options.Option[*Config]

// WithWorkers sets the Multifit worker pool size.
func WithWorkers(n int) Option {
	return options.New(func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("worker count must be positive, got %d", n)
		}
		c.Workers = n

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return options.NoError(func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	})
}

// WithFitter replaces the per-pixel solver.
func WithFitter(f fit.Fitter) Option {
	return options.New(func(c *Config) error {
		if f == nil {
			return fmt.Errorf("fitter must not be nil")
		}
		c.Fitter = f

		return nil
	})
}

// WithLowLoss sets the low-loss spectrum image used for convolution. It must
// have the target's energy scale and either one pixel or the target's
// navigation shape.
func WithLowLoss(ll *signal.Signal) Option {
	return options.NoError(func(c *Config) {
		c.LowLoss = ll
	})
}
