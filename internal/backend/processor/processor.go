package processor

import (
	"fmt"
	"image"
	"maps"
)

// Processor is the contract every plugin implements.
type Processor interface {
	Name() string
	Title() string
	Author() string
	Description() string
	DefaultConfig() Config
	Process(cfg Config, img *Image) error
}

// Factory creates a fresh processor instance. Instances are not shared
// between goroutines, so a factory is called once per worker.
type Factory func() (Processor, error)

// Config is the opaque configuration handed to a processor. Params is never
// interpreted by the host.
type Config struct {
	ID     string         `json:"id" yaml:"id"`
	Params map[string]any `json:"config" yaml:"config"`
}

// NewConfig returns a config for the processor id with a copy of params.
func NewConfig(id string, params map[string]any) Config {
	cfg := Config{ID: id, Params: make(map[string]any, len(params))}
	maps.Copy(cfg.Params, params)
	return cfg
}

// MergeConfig overlays overrides onto defaults and returns a new config.
// The id of defaults is kept.
func MergeConfig(defaults Config, overrides map[string]any) Config {
	merged := NewConfig(defaults.ID, defaults.Params)
	maps.Copy(merged.Params, overrides)
	return merged
}

// Metadata holds textual image metadata (EXIF tags and the like).
type Metadata map[string]string

// Image is the unit of work passed through processors.
type Image struct {
	Name     string
	Format   string
	Image    image.Image
	Metadata Metadata
}

// NewImage wraps a decoded image.
func NewImage(name, format string, img image.Image) *Image {
	return &Image{
		Name:     name,
		Format:   format,
		Image:    img,
		Metadata: make(Metadata),
	}
}

// ImageProcessor is implemented by processors that work on pixels.
type ImageProcessor interface {
	ProcessImage(img image.Image) (image.Image, error)
}

// MetadataProcessor is implemented by processors that work on metadata.
type MetadataProcessor interface {
	ProcessMetadata(meta Metadata) error
}

// RunStages applies the metadata stage and then the image stage of p, when
// p implements them.
func RunStages(p any, img *Image) error {
	if img == nil || img.Image == nil {
		return fmt.Errorf("no image to process")
	}
	if mp, ok := p.(MetadataProcessor); ok {
		if img.Metadata == nil {
			img.Metadata = make(Metadata)
		}
		if err := mp.ProcessMetadata(img.Metadata); err != nil {
			return fmt.Errorf("metadata stage failed: %w", err)
		}
	}
	if ip, ok := p.(ImageProcessor); ok {
		out, err := ip.ProcessImage(img.Image)
		if err != nil {
			return fmt.Errorf("image stage failed: %w", err)
		}
		if out == nil {
			return fmt.Errorf("image stage returned no image")
		}
		img.Image = out
	}
	return nil
}
