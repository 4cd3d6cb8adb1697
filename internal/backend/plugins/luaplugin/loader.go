package luaplugin

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jo-hoe/lenna/internal/backend/processor"
)

// LoadDir registers every *.lua script in dir with registry and returns the
// registered names. Each Create call gets its own Lua state.
func LoadDir(dir string, registry *processor.Registry) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin directory %s: %w", dir, err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".lua") {
			continue
		}
		path := filepath.Join(dir, entry.Name())

		data, err := os.ReadFile(path)
		if err != nil {
			return names, fmt.Errorf("failed to read plugin %s: %w", path, err)
		}
		source := string(data)

		manifest, err := ParseManifest(source)
		if err != nil {
			return names, fmt.Errorf("plugin %s: %w", path, err)
		}

		label := entry.Name()
		factory := func() (processor.Processor, error) {
			return New(label, source, DefaultTimeout)
		}
		if err := registry.Register(manifest.Name, factory); err != nil {
			return names, fmt.Errorf("plugin %s: %w", path, err)
		}

		slog.Info("registered lua plugin", "name", manifest.Name, "file", path)
		names = append(names, manifest.Name)
	}
	return names, nil
}
