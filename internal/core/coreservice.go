package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jo-hoe/lenna/internal/backend/database"
	"github.com/jo-hoe/lenna/internal/backend/imageio"
	"github.com/jo-hoe/lenna/internal/backend/plugins/luaplugin"
	"github.com/jo-hoe/lenna/internal/backend/processor"
)

// ErrHistoryDisabled is returned by history queries when no database is configured
var ErrHistoryDisabled = errors.New("run history is disabled")

type CoreService struct {
	config          *ServiceConfig
	registry        *processor.Registry
	databaseService database.DatabaseService
	imageOptions    imageio.Options
}

// PluginInfo describes a registered plugin
type PluginInfo struct {
	Name          string           `json:"name" yaml:"name"`
	Title         string           `json:"title" yaml:"title"`
	Author        string           `json:"author" yaml:"author"`
	Description   string           `json:"description" yaml:"description"`
	DefaultConfig processor.Config `json:"defaultConfig" yaml:"defaultConfig"`
}

// ProcessRequest describes one file run. When Plugins is empty the
// configured pipeline is used.
type ProcessRequest struct {
	InputPath  string
	OutputPath string
	Plugins    []string
	Params     []map[string]any
}

// StepResult is what one plugin ran with
type StepResult struct {
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description" yaml:"description"`
	Config      processor.Config `json:"config" yaml:"config"`
}

// ProcessResult reports a finished file run
type ProcessResult struct {
	RunID       string        `json:"runId,omitempty" yaml:"runId,omitempty"`
	InputPath   string        `json:"inputPath" yaml:"inputPath"`
	OutputPath  string        `json:"outputPath" yaml:"outputPath"`
	InputShape  imageio.Shape `json:"inputShape" yaml:"inputShape"`
	OutputShape imageio.Shape `json:"outputShape" yaml:"outputShape"`
	Steps       []StepResult  `json:"steps" yaml:"steps"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// NewCoreService wires the plugin registry, script plugins and run history
func NewCoreService(config *ServiceConfig) (*CoreService, error) {
	if config == nil {
		config = DefaultConfig()
	}

	registry := processor.DefaultRegistry.Clone()
	if config.PluginsDir != "" {
		names, err := luaplugin.LoadDir(config.PluginsDir, registry)
		if err != nil {
			return nil, fmt.Errorf("failed to load plugins: %w", err)
		}
		slog.Info("script plugins loaded", "dir", config.PluginsDir, "count", len(names))
	}

	service := &CoreService{
		config:   config,
		registry: registry,
		imageOptions: imageio.Options{
			SVGFallbackWidth:  config.SVGFallbackWidth,
			SVGFallbackHeight: config.SVGFallbackHeight,
		},
	}

	if config.Database.Enabled() {
		databaseService, err := getDatabaseService(config)
		if err != nil {
			return nil, err
		}
		service.databaseService = databaseService
	}

	return service, nil
}

func getDatabaseService(config *ServiceConfig) (database.DatabaseService, error) {
	databaseService, err := database.NewDatabase(config.Database.Type, config.Database.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	slog.Info("database initialized successfully", "type", config.Database.Type)
	return databaseService, nil
}

// Config returns the service configuration
func (service *CoreService) Config() *ServiceConfig {
	return service.config
}

// Registry returns the registry holding bundled and script plugins
func (service *CoreService) Registry() *processor.Registry {
	return service.registry
}

// ImageOptions returns the decoding options derived from the configuration
func (service *CoreService) ImageOptions() imageio.Options {
	return service.imageOptions
}

// Plugins describes every registered plugin, sorted by name
func (service *CoreService) Plugins() ([]PluginInfo, error) {
	names := service.registry.GetRegisteredNames()
	infos := make([]PluginInfo, 0, len(names))
	for _, name := range names {
		info, err := service.Describe(name)
		if err != nil {
			return nil, err
		}
		infos = append(infos, *info)
	}
	return infos, nil
}

// Describe returns the description and default configuration of a plugin
func (service *CoreService) Describe(name string) (*PluginInfo, error) {
	p, err := service.registry.Create(name)
	if err != nil {
		return nil, err
	}
	if closer, ok := p.(io.Closer); ok {
		defer func() {
			if err := closer.Close(); err != nil {
				slog.Warn("failed to release plugin", "plugin", name, "error", err)
			}
		}()
	}

	return &PluginInfo{
		Name:          p.Name(),
		Title:         p.Title(),
		Author:        p.Author(),
		Description:   p.Description(),
		DefaultConfig: p.DefaultConfig(),
	}, nil
}

// ProcessImage runs the named plugins on img in order. Each entry of params
// is merged over the default configuration of the plugin at that index.
func (service *CoreService) ProcessImage(ctx context.Context, plugins []string, params []map[string]any, img *processor.Image) ([]StepResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	chain, err := processor.BuildChain(service.registry, plugins, params)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := chain.Close(); err != nil {
			slog.Warn("failed to release plugins", "error", err)
		}
	}()

	steps := make([]StepResult, 0, chain.Len())
	for _, step := range chain.Steps() {
		steps = append(steps, StepResult{
			Name:        step.Processor.Name(),
			Description: step.Processor.Description(),
			Config:      step.Config,
		})
	}

	if err := chain.Execute(img); err != nil {
		return nil, err
	}
	return steps, ctx.Err()
}

// ProcessFile opens the input image, runs the plugins on it and saves the
// result in the format given by the output extension
func (service *CoreService) ProcessFile(ctx context.Context, req ProcessRequest) (*ProcessResult, error) {
	start := time.Now()

	plugins, params := req.Plugins, req.Params
	if len(plugins) == 0 {
		plugins, params = service.config.StepNames(), service.config.StepParams()
	}
	if _, err := imageio.FormatFromPath(req.OutputPath); err != nil {
		return nil, err
	}

	img, data, err := service.imageOptions.OpenWithData(req.InputPath)
	if err != nil {
		return nil, err
	}
	inputShape := imageio.ShapeOf(img.Image)
	slog.Debug("image opened", "path", req.InputPath, "shape", inputShape.String())

	steps, err := service.ProcessImage(ctx, plugins, params, img)
	if err != nil {
		return nil, err
	}

	if err := imageio.Save(img.Image, req.OutputPath); err != nil {
		return nil, err
	}

	result := &ProcessResult{
		InputPath:   req.InputPath,
		OutputPath:  req.OutputPath,
		InputShape:  inputShape,
		OutputShape: imageio.ShapeOf(img.Image),
		Steps:       steps,
		Duration:    time.Since(start),
	}

	if service.databaseService != nil {
		sum := sha256.Sum256(data)
		runID, err := service.recordRun(result, hex.EncodeToString(sum[:]))
		if err != nil {
			return nil, err
		}
		result.RunID = runID
	}

	slog.Info("image processed",
		"input", req.InputPath,
		"output", req.OutputPath,
		"plugins", plugins,
		"duration_ms", result.Duration.Milliseconds())
	return result, nil
}

func (service *CoreService) recordRun(result *ProcessResult, inputSHA256 string) (string, error) {
	configs := make([]processor.Config, len(result.Steps))
	plugins := make([]string, len(result.Steps))
	for i, step := range result.Steps {
		configs[i] = step.Config
		plugins[i] = step.Name
	}
	config, err := json.Marshal(configs)
	if err != nil {
		return "", fmt.Errorf("failed to encode run config: %w", err)
	}

	id, err := service.databaseService.CreateRun(&database.Run{
		InputPath:   result.InputPath,
		InputSHA256: inputSHA256,
		Plugins:     plugins,
		Config:      config,
		OutputPath:  result.OutputPath,
		Width:       result.OutputShape.Width,
		Height:      result.OutputShape.Height,
		DurationMS:  result.Duration.Milliseconds(),
	})
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// ListRuns returns the newest recorded runs
func (service *CoreService) ListRuns(limit int) ([]*database.Run, error) {
	if service.databaseService == nil {
		return nil, ErrHistoryDisabled
	}
	return service.databaseService.ListRuns(limit)
}

// GetRun returns one recorded run
func (service *CoreService) GetRun(id string) (*database.Run, error) {
	if service.databaseService == nil {
		return nil, ErrHistoryDisabled
	}
	return service.databaseService.GetRun(id)
}

func (service *CoreService) Close() error {
	if service.databaseService != nil {
		return service.databaseService.Close()
	}
	return nil
}
