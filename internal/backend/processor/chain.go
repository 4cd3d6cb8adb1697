package processor

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Step pairs a processor with the configuration it runs with.
type Step struct {
	Processor Processor
	Config    Config
}

// Chain executes a sequence of steps on one image
type Chain struct {
	steps []Step
}

// NewChain creates a new chain
func NewChain(steps []Step) *Chain {
	return &Chain{
		steps: steps,
	}
}

// Len returns the number of steps
func (c *Chain) Len() int {
	return len(c.steps)
}

// Steps returns the configured steps
func (c *Chain) Steps() []Step {
	return c.steps
}

// Close releases processors that hold resources
func (c *Chain) Close() error {
	var errs []error
	for _, step := range c.steps {
		if closer, ok := step.Processor.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close processor %s: %w", step.Processor.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}

// Execute applies all steps in sequence to img
func (c *Chain) Execute(img *Image) error {
	if img == nil || img.Image == nil {
		return fmt.Errorf("no image to process")
	}
	start := time.Now()

	slog.Info("starting processor chain",
		"step_count", len(c.steps),
		"image", img.Name,
		"width", img.Image.Bounds().Dx(),
		"height", img.Image.Bounds().Dy())

	if len(c.steps) == 0 {
		slog.Debug("no processors to run, returning original image")
		return nil
	}

	for idx, step := range c.steps {
		stepStart := time.Now()
		name := step.Processor.Name()

		slog.Debug("running processor",
			"index", idx,
			"processor", name,
			"config", step.Config.Params)

		if err := step.Processor.Process(step.Config, img); err != nil {
			slog.Error("processor failed",
				"index", idx,
				"processor", name,
				"error", err)
			return fmt.Errorf("processor %s (index %d) failed: %w", name, idx, err)
		}
		if img.Image == nil {
			return fmt.Errorf("processor %s (index %d) dropped the image", name, idx)
		}

		slog.Info("processor completed",
			"index", idx,
			"processor", name,
			"duration_ms", time.Since(stepStart).Milliseconds(),
			"width", img.Image.Bounds().Dx(),
			"height", img.Image.Bounds().Dy())
	}

	slog.Info("processor chain completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"step_count", len(c.steps))

	return nil
}

// BuildChain creates a chain from named steps using the registry. Each
// step's params are merged over the processor's default configuration.
func BuildChain(registry *Registry, names []string, params []map[string]any) (*Chain, error) {
	steps := make([]Step, 0, len(names))
	for i, name := range names {
		p, err := registry.Create(name)
		if err != nil {
			_ = NewChain(steps).Close()
			return nil, fmt.Errorf("failed to create processor at index %d (%s): %w", i, name, err)
		}
		var overrides map[string]any
		if i < len(params) {
			overrides = params[i]
		}
		steps = append(steps, Step{
			Processor: p,
			Config:    MergeConfig(p.DefaultConfig(), overrides),
		})
	}
	return NewChain(steps), nil
}
