package ultraface

import (
	"fmt"
	"image"
	"log/slog"

	"github.com/jo-hoe/lenna/internal/backend/processor"
)

// Name is the registry name of the plugin
const Name = "ultraface"

// UltraFace is the face detection plugin. Both of its stages leave the
// image untouched.
type UltraFace struct{}

// New creates the plugin
func New() (processor.Processor, error) {
	return &UltraFace{}, nil
}

func (u *UltraFace) Name() string   { return Name }
func (u *UltraFace) Title() string  { return "UltraFace" }
func (u *UltraFace) Author() string { return "chriamue" }

func (u *UltraFace) Description() string {
	return "Plugin to detect faces in images."
}

// DefaultConfig returns the empty configuration object. The plugin has no
// settings.
func (u *UltraFace) DefaultConfig() processor.Config {
	return processor.NewConfig(Name, map[string]any{})
}

// Process runs the metadata stage and then the image stage
func (u *UltraFace) Process(cfg processor.Config, img *processor.Image) error {
	if img == nil {
		return fmt.Errorf("%s: no image", Name)
	}
	slog.Debug("UltraFace: processing image",
		"image", img.Name,
		"config_id", cfg.ID,
		"params", len(cfg.Params))
	return processor.RunStages(u, img)
}

// ProcessMetadata leaves the metadata as is
func (u *UltraFace) ProcessMetadata(processor.Metadata) error {
	return nil
}

// ProcessImage returns the image as is
func (u *UltraFace) ProcessImage(img image.Image) (image.Image, error) {
	return img, nil
}

func init() {
	if err := processor.DefaultRegistry.Register(Name, New); err != nil {
		panic(fmt.Sprintf("failed to register %s: %v", Name, err))
	}
}
