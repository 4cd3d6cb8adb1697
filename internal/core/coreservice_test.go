package core

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/jo-hoe/lenna/internal/backend/imageio"
	"github.com/jo-hoe/lenna/internal/backend/processor"
)

func writeTestPNG(t *testing.T, dir string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 200, A: 255})
		}
	}
	path := filepath.Join(dir, "lenna.png")
	if err := imageio.Save(img, path); err != nil {
		t.Fatalf("failed to write test image: %v", err)
	}
	return path
}

func newTestService(t *testing.T, config *ServiceConfig) *CoreService {
	t.Helper()
	service, err := NewCoreService(config)
	if err != nil {
		t.Fatalf("NewCoreService failed: %v", err)
	}
	t.Cleanup(func() { _ = service.Close() })
	return service
}

func TestProcessFile_Ultraface(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 24, 16)
	output := filepath.Join(dir, "lenna_out.png")

	service := newTestService(t, DefaultConfig())
	result, err := service.ProcessFile(context.Background(), ProcessRequest{
		InputPath:  input,
		OutputPath: output,
		Plugins:    []string{"ultraface"},
	})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}

	if result.InputShape != (imageio.Shape{Height: 16, Width: 24, Channels: 4}) {
		t.Errorf("Unexpected input shape %s", result.InputShape)
	}
	if result.OutputShape != result.InputShape {
		t.Errorf("Expected identity processing, got %s -> %s", result.InputShape, result.OutputShape)
	}
	if len(result.Steps) != 1 || result.Steps[0].Description != "Plugin to detect faces in images." {
		t.Errorf("Unexpected steps: %+v", result.Steps)
	}
	if len(result.Steps[0].Config.Params) != 0 {
		t.Errorf("Expected empty default config, got %v", result.Steps[0].Config.Params)
	}
	if result.RunID != "" {
		t.Errorf("Expected no run id without history, got %q", result.RunID)
	}

	saved, err := imageio.Open(output)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	got := imageio.ShapeOf(saved.Image)
	if got.Width != result.OutputShape.Width || got.Height != result.OutputShape.Height {
		t.Errorf("Saved dimensions %s differ from processed %s", got, result.OutputShape)
	}
}

func TestProcessFile_UsesConfiguredPipeline(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 4, 4)

	service := newTestService(t, DefaultConfig())
	result, err := service.ProcessFile(context.Background(), ProcessRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "out.bmp"),
	})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if len(result.Steps) != 1 || result.Steps[0].Name != "ultraface" {
		t.Errorf("Expected configured pipeline to run, got %+v", result.Steps)
	}
}

func TestProcessFile_Errors(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 4, 4)
	service := newTestService(t, DefaultConfig())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	tests := []struct {
		name string
		ctx  context.Context
		req  ProcessRequest
	}{
		{"unknown plugin", context.Background(), ProcessRequest{InputPath: input, OutputPath: filepath.Join(dir, "a.png"), Plugins: []string{"missing"}}},
		{"missing input", context.Background(), ProcessRequest{InputPath: filepath.Join(dir, "nope.png"), OutputPath: filepath.Join(dir, "b.png")}},
		{"unsupported output", context.Background(), ProcessRequest{InputPath: input, OutputPath: filepath.Join(dir, "c.xyz")}},
		{"cancelled", cancelled, ProcessRequest{InputPath: input, OutputPath: filepath.Join(dir, "d.png")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := service.ProcessFile(tt.ctx, tt.req); err == nil {
				t.Fatal("Expected error")
			}
			if _, err := os.Stat(tt.req.OutputPath); !os.IsNotExist(err) {
				t.Errorf("Expected no output file, stat returned %v", err)
			}
		})
	}
}

func TestProcessFile_RecordsHistory(t *testing.T) {
	dir := t.TempDir()
	input := writeTestPNG(t, dir, 8, 6)

	config := DefaultConfig()
	config.Database = Database{Type: "sqlite", ConnectionString: ":memory:"}
	service := newTestService(t, config)

	result, err := service.ProcessFile(context.Background(), ProcessRequest{
		InputPath:  input,
		OutputPath: filepath.Join(dir, "out.png"),
	})
	if err != nil {
		t.Fatalf("ProcessFile failed: %v", err)
	}
	if result.RunID == "" {
		t.Fatal("Expected a run id")
	}

	runs, err := service.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("Expected 1 run, got %d", len(runs))
	}

	data, err := os.ReadFile(input)
	if err != nil {
		t.Fatal(err)
	}
	sum := sha256.Sum256(data)
	run := runs[0]
	if run.ID != result.RunID || run.InputSHA256 != hex.EncodeToString(sum[:]) {
		t.Errorf("Unexpected run: %+v", run)
	}
	if run.Width != 8 || run.Height != 6 {
		t.Errorf("Expected 8x6, got %dx%d", run.Width, run.Height)
	}
	if len(run.Plugins) != 1 || run.Plugins[0] != "ultraface" {
		t.Errorf("Unexpected plugins: %v", run.Plugins)
	}

	got, err := service.GetRun(result.RunID)
	if err != nil || got.OutputPath != result.OutputPath {
		t.Errorf("GetRun returned %+v, %v", got, err)
	}
}

func TestHistoryDisabled(t *testing.T) {
	service := newTestService(t, DefaultConfig())
	if _, err := service.ListRuns(1); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
	if _, err := service.GetRun("x"); !errors.Is(err, ErrHistoryDisabled) {
		t.Errorf("Expected ErrHistoryDisabled, got %v", err)
	}
}

func TestScriptPlugins(t *testing.T) {
	pluginsDir := t.TempDir()
	script := `
Plugin = { name = "tagger", description = "Tags images", config = { tag = "x" } }
function process(config, image)
    return { tag = config.tag }
end
`
	if err := os.WriteFile(filepath.Join(pluginsDir, "tagger.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	config := DefaultConfig()
	config.PluginsDir = pluginsDir
	service := newTestService(t, config)

	infos, err := service.Plugins()
	if err != nil {
		t.Fatalf("Plugins failed: %v", err)
	}
	if len(infos) < 2 {
		t.Fatalf("Expected bundled and script plugins, got %+v", infos)
	}
	info, err := service.Describe("tagger")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.Description != "Tags images" || info.DefaultConfig.Params["tag"] != "x" {
		t.Errorf("Unexpected plugin info: %+v", info)
	}

	img, err := imageio.Open(writeTestPNG(t, t.TempDir(), 2, 2))
	if err != nil {
		t.Fatal(err)
	}
	steps, err := service.ProcessImage(context.Background(),
		[]string{"ultraface", "tagger"},
		[]map[string]any{nil, {"tag": "override"}},
		img)
	if err != nil {
		t.Fatalf("ProcessImage failed: %v", err)
	}
	if len(steps) != 2 {
		t.Errorf("Expected 2 steps, got %d", len(steps))
	}
	if img.Metadata["tag"] != "override" {
		t.Errorf("Expected script metadata, got %v", img.Metadata)
	}

	if processorRegistered := service.Registry().IsRegistered("tagger"); !processorRegistered {
		t.Error("Expected tagger in service registry")
	}
}

func TestNewCoreService_BadPluginsDir(t *testing.T) {
	config := DefaultConfig()
	config.PluginsDir = filepath.Join(t.TempDir(), "missing")
	if _, err := NewCoreService(config); err == nil {
		t.Error("Expected error for missing plugins directory")
	}
}

type closingPlugin struct {
	closed int
}

func (p *closingPlugin) Name() string        { return "closing" }
func (p *closingPlugin) Title() string       { return "Closing" }
func (p *closingPlugin) Author() string      { return "test" }
func (p *closingPlugin) Description() string { return "Plugin that holds a resource." }
func (p *closingPlugin) DefaultConfig() processor.Config {
	return processor.NewConfig("closing", map[string]any{})
}
func (p *closingPlugin) Process(processor.Config, *processor.Image) error { return nil }

func (p *closingPlugin) Close() error {
	p.closed++
	return errors.New("already closed")
}

func TestDescribe_ClosesPlugin(t *testing.T) {
	service := newTestService(t, DefaultConfig())
	plugin := &closingPlugin{}
	if err := service.Registry().Register("closing", func() (processor.Processor, error) { return plugin, nil }); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	info, err := service.Describe("closing")
	if err != nil {
		t.Fatalf("Describe failed: %v", err)
	}
	if info.Title != "Closing" || info.DefaultConfig.ID != "closing" {
		t.Errorf("Unexpected info: %+v", info)
	}
	if plugin.closed != 1 {
		t.Errorf("Expected plugin to be closed once, got %d", plugin.closed)
	}
}
