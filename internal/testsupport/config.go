package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"webpify/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.JournalPath = filepath.Join(base, "journal.db")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Convert.Workers = 2
	cfgVal.UI.Progress = false
	cfgVal.UI.PauseOnExit = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithWorkers overrides the worker count on the test config.
func WithWorkers(n int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Convert.Workers = n
	}
}

// WithQuality overrides the encode quality on the test config.
func WithQuality(q int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Convert.Quality = q
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, cwebp is stubbed. The stubs exit
// zero without producing output; use WithStubbedCwebp when a test needs the
// conversion pipeline to run end to end.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"cwebp"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		prependPath(b.t, binDir)
	}
}

// WithStubbedCwebp installs a cwebp stand-in that writes a minimal WebP
// container of the given dimensions wherever -o points. Tests that feed the
// pipeline PNGs of the same dimensions get outputs that pass validation.
func WithStubbedCwebp(width, height int) ConfigOption {
	return func(b *configBuilder) {
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}

		fixture := filepath.Join(binDir, "fixture.webp")
		if err := os.WriteFile(fixture, VP8Container(width, height), 0o644); err != nil {
			b.t.Fatalf("write webp fixture: %v", err)
		}

		script := fmt.Sprintf(`#!/bin/sh
out=""
prev=""
for arg in "$@"; do
  if [ "$prev" = "-o" ]; then
    out="$arg"
  fi
  prev="$arg"
done
if [ -z "$out" ]; then
  echo "missing -o argument" >&2
  exit 1
fi
cp %q "$out"
`, fixture)
		if err := os.WriteFile(filepath.Join(binDir, "cwebp"), []byte(script), 0o755); err != nil {
			b.t.Fatalf("write cwebp stub: %v", err)
		}

		prependPath(b.t, binDir)
	}
}

func prependPath(t testing.TB, dir string) {
	t.Helper()
	oldPath := os.Getenv("PATH")
	if err := os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath); err != nil {
		t.Fatalf("set PATH: %v", err)
	}
	t.Cleanup(func() {
		_ = os.Setenv("PATH", oldPath)
	})
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.LogDir)
}
