package processor

import (
	"image"
	"image/color"
)

// mockProcessor is a simple mock implementation of the Processor interface for testing
type mockProcessor struct {
	name        string
	defaults    map[string]any
	processFunc func(Config, *Image) error
}

func (m *mockProcessor) Name() string        { return m.name }
func (m *mockProcessor) Title() string       { return "Mock " + m.name }
func (m *mockProcessor) Author() string      { return "tests" }
func (m *mockProcessor) Description() string { return "mock processor" }

func (m *mockProcessor) DefaultConfig() Config {
	return NewConfig(m.name, m.defaults)
}

func (m *mockProcessor) Process(cfg Config, img *Image) error {
	if m.processFunc != nil {
		return m.processFunc(cfg, img)
	}
	return nil
}

// newMockProcessor creates a mock processor with default behavior (pass-through)
func newMockProcessor(name string) *mockProcessor {
	return &mockProcessor{name: name}
}

// newMockProcessorWithError creates a mock processor that returns an error
func newMockProcessorWithError(name string, err error) *mockProcessor {
	return &mockProcessor{
		name: name,
		processFunc: func(Config, *Image) error {
			return err
		},
	}
}

func newTestImage(w, h int) *Image {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	return NewImage("test", "png", img)
}
