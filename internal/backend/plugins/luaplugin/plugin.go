package luaplugin

import (
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/jo-hoe/lenna/internal/backend/imageio"
	"github.com/jo-hoe/lenna/internal/backend/processor"
)

// Plugin adapts a Lua script to the processor interface. Scripts see the
// image name, format, shape and metadata but never the pixels.
type Plugin struct {
	manifest *Manifest
	sandbox  *Sandbox
}

// New loads source into a fresh sandbox
func New(label, source string, timeout time.Duration) (*Plugin, error) {
	s := NewSandbox(label, timeout)
	if err := s.Load(source); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load %s: %w", label, err)
	}
	manifest, err := readManifest(s)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid plugin %s: %w", label, err)
	}
	return &Plugin{manifest: manifest, sandbox: s}, nil
}

func (p *Plugin) Name() string        { return p.manifest.Name }
func (p *Plugin) Title() string       { return p.manifest.Title }
func (p *Plugin) Author() string      { return p.manifest.Author }
func (p *Plugin) Description() string { return p.manifest.Description }

// DefaultConfig returns the script's Plugin.config table
func (p *Plugin) DefaultConfig() processor.Config {
	return processor.NewConfig(p.manifest.Name, p.manifest.Config)
}

// Process calls the script's process function, if any, and merges the
// table it returns into the image metadata
func (p *Plugin) Process(cfg processor.Config, img *processor.Image) error {
	if img == nil || img.Image == nil {
		return fmt.Errorf("no image to process")
	}

	shape := imageio.ShapeOf(img.Image)
	imageTable := map[string]any{
		"name":     img.Name,
		"format":   img.Format,
		"width":    shape.Width,
		"height":   shape.Height,
		"channels": shape.Channels,
		"metadata": map[string]string(maps.Clone(img.Metadata)),
	}

	params := cfg.Params
	if params == nil {
		params = map[string]any{}
	}
	if err := processor.ValidateRequiredParams(params, p.manifest.Required); err != nil {
		return fmt.Errorf("%s: %w", p.Name(), err)
	}

	ret, defined, err := p.sandbox.Call("process", params, imageTable)
	if err != nil {
		return err
	}
	if !defined {
		slog.Debug("lua plugin has no process function", "plugin", p.Name())
		return nil
	}

	switch v := ret.(type) {
	case nil:
		return nil
	case map[string]any:
		if img.Metadata == nil {
			img.Metadata = processor.Metadata{}
		}
		for key, value := range v {
			switch value.(type) {
			case string, int, float64, bool:
				img.Metadata[key] = fmt.Sprint(value)
			default:
				slog.Warn("ignoring non-scalar metadata value", "plugin", p.Name(), "key", key)
			}
		}
		return nil
	default:
		return fmt.Errorf("process must return a table or nil, got %T", ret)
	}
}

// Close releases the Lua state
func (p *Plugin) Close() error {
	p.sandbox.Close()
	return nil
}
