package luaplugin

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// Manifest is the Plugin table a script declares
type Manifest struct {
	Name        string         `yaml:"name"`
	Title       string         `yaml:"title"`
	Author      string         `yaml:"author"`
	Description string         `yaml:"description"`
	Config      map[string]any `yaml:"config"`
	Required    []string       `yaml:"required"`
}

// ParseManifest runs source in a throwaway sandbox and extracts the Plugin table
func ParseManifest(source string) (*Manifest, error) {
	s := NewSandbox("manifest", DefaultTimeout)
	defer s.Close()

	if err := s.Load(source); err != nil {
		return nil, fmt.Errorf("failed to parse plugin: %w", err)
	}
	return readManifest(s)
}

func readManifest(s *Sandbox) (*Manifest, error) {
	pluginTable := s.Global("Plugin")
	if pluginTable == lua.LNil {
		return nil, fmt.Errorf("plugin must define a Plugin table")
	}
	tbl, ok := pluginTable.(*lua.LTable)
	if !ok {
		return nil, fmt.Errorf("Plugin must be a table")
	}

	manifest := &Manifest{Config: map[string]any{}}

	name, ok := tbl.RawGetString("name").(lua.LString)
	if !ok || name == "" {
		return nil, fmt.Errorf("plugin must have a name")
	}
	manifest.Name = string(name)

	if title := tbl.RawGetString("title"); title != lua.LNil {
		manifest.Title = title.String()
	} else {
		manifest.Title = manifest.Name
	}
	if author := tbl.RawGetString("author"); author != lua.LNil {
		manifest.Author = author.String()
	}
	if desc := tbl.RawGetString("description"); desc != lua.LNil {
		manifest.Description = desc.String()
	}

	if config := tbl.RawGetString("config"); config != lua.LNil {
		cfgTbl, ok := config.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("Plugin.config must be a table")
		}
		m, ok := luaToGo(cfgTbl).(map[string]any)
		if !ok {
			return nil, fmt.Errorf("Plugin.config must have string keys")
		}
		manifest.Config = m
	}

	if required := tbl.RawGetString("required"); required != lua.LNil {
		reqTbl, ok := required.(*lua.LTable)
		if !ok {
			return nil, fmt.Errorf("Plugin.required must be a list of parameter names")
		}
		var bad bool
		reqTbl.ForEach(func(_, key lua.LValue) {
			name, ok := key.(lua.LString)
			if !ok || name == "" {
				bad = true
				return
			}
			manifest.Required = append(manifest.Required, string(name))
		})
		if bad {
			return nil, fmt.Errorf("Plugin.required must be a list of parameter names")
		}
	}

	return manifest, nil
}
