package render

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/adityasoni99/code-iq/internal/domain"
)

// Writer persists rendered tutorial files. The pipeline's final stage
// depends on this instead of the filesystem so tests can capture output
// in memory.
type Writer interface {
	// Write stores content under dir/name, creating dir if needed.
	Write(dir, name string, content []byte) error
}

// FSWriter writes tutorial files to the local filesystem.
type FSWriter struct {
	// Mode is the permission for created files. Zero means 0o644.
	Mode os.FileMode
}

func (w FSWriter) Write(dir, name string, content []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return domain.ErrWrite(fmt.Sprintf("create output directory %s: %v", dir, err))
	}
	mode := w.Mode
	if mode == 0 {
		mode = 0o644
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, content, mode); err != nil {
		return domain.ErrWrite(fmt.Sprintf("write %s: %v", path, err))
	}
	return nil
}

var _ Writer = FSWriter{}
