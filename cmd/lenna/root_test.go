package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jo-hoe/lenna/internal/backend/imageio"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default between executions
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

// executeCommand is a helper to run a cobra command and capture its output
func executeCommand(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv(envConfig, "")
	t.Setenv(envDatabase, "")
	t.Setenv(envLogLevel, "")
	resetFlags(rootCmd)

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	return out.String(), errOut.String(), err
}

// writeFixture creates an empty config and a 24x16 opaque PNG
func writeFixture(t *testing.T) (configPath, imagePath string) {
	t.Helper()
	dir := t.TempDir()
	configPath = filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("port: 8080\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 24, 16))
	for y := 0; y < 16; y++ {
		for x := 0; x < 24; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 10), G: uint8(y * 10), B: 100, A: 255})
		}
	}
	imagePath = filepath.Join(dir, "lenna.png")
	if err := imageio.Save(img, imagePath); err != nil {
		t.Fatal(err)
	}
	return configPath, imagePath
}

func TestProcessCommand(t *testing.T) {
	configPath, input := writeFixture(t)
	output := filepath.Join(t.TempDir(), "lenna_test_out.png")

	out, errOut, err := executeCommand(t, "process", "--config", configPath, "-i", input, "-o", output)
	if err != nil {
		t.Fatalf("process failed: %v, stderr: %s", err, errOut)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	want := []string{
		"Plugin to detect faces in images.",
		"(16, 24, 4)",
		"{}",
		"(16, 24, 4)",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %q", len(want), out)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}

	saved, err := imageio.Open(output)
	if err != nil {
		t.Fatalf("expected output image: %v", err)
	}
	if got := imageio.ShapeOf(saved.Image); got.String() != lines[3] {
		t.Errorf("saved image shape %s differs from processed shape %s", got, lines[3])
	}
}

func TestProcessCommand_SetAndFormat(t *testing.T) {
	configPath, input := writeFixture(t)
	output := filepath.Join(t.TempDir(), "out.jpg")

	out, errOut, err := executeCommand(t, "process", "--config", configPath,
		"-i", input, "-o", output, "-p", "ultraface", "--set", "threshold=0.7", "--set", "label=face")
	if err != nil {
		t.Fatalf("process failed: %v, stderr: %s", err, errOut)
	}
	if !strings.Contains(out, `"label":"face"`) || !strings.Contains(out, `"threshold":0.7`) {
		t.Errorf("expected overrides in config output, got %q", out)
	}
	if strings.Contains(out, `"id":`) {
		t.Errorf("expected only the plugin parameters, got %q", out)
	}
	if _, err := os.Stat(output); err != nil {
		t.Errorf("expected jpeg output: %v", err)
	}
}

func TestProcessCommand_Errors(t *testing.T) {
	configPath, input := writeFixture(t)
	dir := t.TempDir()

	tests := []struct {
		name string
		args []string
	}{
		{"missing flags", []string{"process", "--config", configPath}},
		{"unknown plugin", []string{"process", "--config", configPath, "-i", input, "-o", filepath.Join(dir, "a.png"), "-p", "nope"}},
		{"bad set", []string{"process", "--config", configPath, "-i", input, "-o", filepath.Join(dir, "b.png"), "--set", "novalue"}},
		{"bad extension", []string{"process", "--config", configPath, "-i", input, "-o", filepath.Join(dir, "c.raw")}},
		{"bad log level", []string{"process", "--log-level", "loud", "--config", configPath, "-i", input, "-o", filepath.Join(dir, "d.png")}},
		{"missing config", []string{"process", "--config", filepath.Join(dir, "none.yaml"), "-i", input, "-o", filepath.Join(dir, "e.png")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := executeCommand(t, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestPluginsCommands(t *testing.T) {
	configPath, _ := writeFixture(t)

	out, _, err := executeCommand(t, "plugins", "list", "--config", configPath)
	if err != nil {
		t.Fatalf("plugins list failed: %v", err)
	}
	if !strings.Contains(out, "ultraface") || !strings.Contains(out, "chriamue") {
		t.Errorf("expected ultraface in list, got %q", out)
	}

	out, _, err = executeCommand(t, "plugins", "describe", "ultraface", "--config", configPath)
	if err != nil {
		t.Fatalf("plugins describe failed: %v", err)
	}
	if !strings.Contains(out, "description: Plugin to detect faces in images.") {
		t.Errorf("unexpected describe output: %q", out)
	}
	if !strings.Contains(out, "id: ultraface") {
		t.Errorf("expected default config in describe output: %q", out)
	}

	if _, _, err := executeCommand(t, "plugins", "describe", "missing", "--config", configPath); err == nil {
		t.Error("expected error for unknown plugin")
	}
}

func TestBatchAndHistoryCommands(t *testing.T) {
	configPath, input := writeFixture(t)
	inDir := filepath.Dir(input)
	outDir := filepath.Join(t.TempDir(), "out")
	dbPath := filepath.Join(t.TempDir(), "runs.db")

	second := filepath.Join(inDir, "second.bmp")
	if err := imageio.Save(image.NewGray(image.Rect(0, 0, 5, 5)), second); err != nil {
		t.Fatal(err)
	}

	out, errOut, err := executeCommand(t, "batch", inDir, "--out-dir", outDir, "--format", "gif", "--config", configPath, "--db", dbPath)
	if err != nil {
		t.Fatalf("batch failed: %v, stderr: %s", err, errOut)
	}
	if !strings.Contains(out, "processed 2 of 2 images") {
		t.Errorf("unexpected batch output: %q", out)
	}
	for _, name := range []string{"lenna.gif", "second.gif"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("expected %s: %v", name, err)
		}
	}

	out, _, err = executeCommand(t, "history", "--config", configPath, "--db", dbPath, "--limit", "1")
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "ultraface") {
		t.Errorf("expected header and one run, got %q", out)
	}

	if _, _, err := executeCommand(t, "history", "--config", configPath); err == nil {
		t.Error("expected error without a database")
	}
}

func TestParseSetFlags(t *testing.T) {
	params, err := parseSetFlags([]string{"n=3", "f=0.5", "b=true", "s=hello", "empty="})
	if err != nil {
		t.Fatalf("parseSetFlags failed: %v", err)
	}
	if params["n"] != 3 || params["f"] != 0.5 || params["b"] != true || params["s"] != "hello" || params["empty"] != "" {
		t.Errorf("unexpected params: %#v", params)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseSetFlags([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
