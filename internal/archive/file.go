package archive

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// FileDestination writes the archive to a local path. The file is replaced
// atomically after an fsync, so readers never observe a partial archive.
type FileDestination struct {
	path string
}

// NewFileDestination creates a destination for path, creating its parent
// directory if needed.
func NewFileDestination(path string) (*FileDestination, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir: %w", err)
	}
	return &FileDestination{path: path}, nil
}

func (d *FileDestination) Name() string { return "file://" + d.path }

func (d *FileDestination) Write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	pending, err := renameio.NewPendingFile(d.path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending archive: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write archive data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("replace archive %s: %w", d.path, err)
	}
	return nil
}
