package deps

import (
	"os/exec"
	"strings"
)

// CwebpVersion asks the resolved cwebp binary for its version string. The
// probe is best effort; a binary that exists but refuses -version still
// counts as available.
func CwebpVersion(command string) (string, bool) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", false
	}
	path, err := exec.LookPath(command)
	if err != nil {
		return "", false
	}

	out, err := exec.Command(path, "-version").Output()
	if err != nil {
		return "", false
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", false
	}
	return line, true
}
