// Package scan enumerates conversion candidates beneath a root directory.
package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"log/slog"

	"webpify/internal/config"
	"webpify/internal/logging"
	"webpify/internal/services"
)

// Scanner walks a directory tree collecting source images. Unreadable
// subtrees are skipped with a warning; only a failure to read the root
// itself aborts the scan.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner returns a Scanner that reports skipped paths on logger.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Scanner{logger: logger}
}

// Scan returns every file under root whose name ends with the source
// extension, compared case-insensitively. Paths come back in filesystem
// traversal order; callers must not assume they are sorted.
func (s *Scanner) Scan(root string) ([]string, error) {
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			s.logger.Warn("skipping unreadable path",
				logging.String(logging.FieldStage, "scan"),
				logging.String("path", path),
				logging.Error(err),
			)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if IsSource(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, services.Wrap(services.ErrValidation, "scan", "walk source tree", "cannot read "+root, walkErr)
	}
	return files, nil
}

// IsSource reports whether name carries the source image extension. The
// comparison ignores case so renders named .PNG are picked up too.
func IsSource(name string) bool {
	return strings.EqualFold(filepath.Ext(name), config.SourceExtension)
}
