package encoding

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"webpify/internal/services"
)

// Encoder transcodes a source image into a WebP file at dst.
type Encoder interface {
	Encode(ctx context.Context, src, dst string, params Params) error
}

// Cwebp shells out to the libwebp cwebp binary.
type Cwebp struct {
	binary string
}

// NewCwebp returns a runner for the named binary; empty means "cwebp" from
// PATH.
func NewCwebp(binary string) *Cwebp {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "cwebp"
	}
	return &Cwebp{binary: binary}
}

func (c *Cwebp) Encode(ctx context.Context, src, dst string, params Params) error {
	path, err := exec.LookPath(c.binary)
	if err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"encode",
			"locate cwebp",
			"cwebp binary not found on PATH",
			err,
		)
	}

	cmd := exec.CommandContext(ctx, path, cwebpArgs(params, src, dst)...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	if err := cmd.Run(); err != nil {
		return services.Wrap(
			services.ErrExternalTool,
			"encode",
			"cwebp",
			tailLines(output.String(), 4),
			err,
		)
	}
	return nil
}

// cwebpArgs builds the argument list. Lossy quality rides -q, effort rides
// -m, and optimize enables the auto-filter pass.
func cwebpArgs(params Params, src, dst string) []string {
	args := make([]string, 0, 10)
	args = append(args, "-quiet")
	if params.Lossless {
		args = append(args, "-lossless")
	} else {
		args = append(args, "-q", strconv.Itoa(params.Quality))
	}
	args = append(args, "-m", strconv.Itoa(params.Effort))
	if params.Optimize {
		args = append(args, "-af")
	}
	args = append(args, src, "-o", dst)
	return args
}

// tailLines keeps the last n non-empty lines of tool output for error
// messages.
func tailLines(output string, n int) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		kept = append([]string{line}, kept...)
	}
	if len(kept) == 0 {
		return "cwebp failed without output"
	}
	return strings.Join(kept, "; ")
}
