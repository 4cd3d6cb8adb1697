package database

import (
	"encoding/json"
	"time"
)

// Run is one recorded processing run
type Run struct {
	ID          string          `json:"id" yaml:"id"`
	InputPath   string          `json:"inputPath" yaml:"inputPath"`
	InputSHA256 string          `json:"inputSha256" yaml:"inputSha256"`
	Plugins     []string        `json:"plugins" yaml:"plugins"`
	Config      json.RawMessage `json:"config" yaml:"-"`
	OutputPath  string          `json:"outputPath" yaml:"outputPath"`
	Width       int             `json:"width" yaml:"width"`
	Height      int             `json:"height" yaml:"height"`
	DurationMS  int64           `json:"durationMs" yaml:"durationMs"`
	CreatedAt   time.Time       `json:"createdAt" yaml:"createdAt"`
}
