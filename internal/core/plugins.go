package core

// bundled plugins
import (
	_ "github.com/jo-hoe/lenna/internal/backend/plugins/ultraface"
)
