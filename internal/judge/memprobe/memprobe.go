// Package memprobe measures a subprocess's peak resident memory by wrapping
// the command with GNU time, which writes the peak RSS (in KB) to a side
// file. Where the utility is missing, memory is reported as unknown.
package memprobe

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gavel/internal/judge/runner"

	"github.com/google/uuid"
)

// Probe is an explicit capability object. It is resolved once at engine
// construction and injected into every run; it holds no mutable state after
// that.
type Probe struct {
	timePath  string
	available bool
}

// Detect resolves the GNU time utility. The probe is unavailable when the
// binary is missing or is not the GNU implementation (BSD time has no -o).
func Detect() *Probe {
	for _, candidate := range []string{"/usr/bin/time", "/bin/time"} {
		if _, err := os.Stat(candidate); err != nil {
			continue
		}
		out, err := exec.Command(candidate, "--version").CombinedOutput()
		if err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(string(out)), "gnu") {
			return &Probe{timePath: candidate, available: true}
		}
	}
	return &Probe{}
}

// Unavailable returns a probe that always reports memory as unknown.
// Useful in tests and on platforms without GNU time.
func Unavailable() *Probe {
	return &Probe{}
}

// Available reports whether peak memory can be measured.
func (p *Probe) Available() bool {
	return p != nil && p.available
}

// Wrap rewrites spec so that the command runs under the profiling wrapper and
// returns a collector that reads the recorded peak RSS. The collector must be
// called after the run completes; it returns nil when no reading is
// available. The side file is removed regardless of the read outcome.
func (p *Probe) Wrap(spec runner.Spec) (runner.Spec, func() *int64) {
	if !p.Available() {
		return spec, func() *int64 { return nil }
	}

	sideFile := filepath.Join(spec.WorkDir, fmt.Sprintf(".memprobe-%s", uuid.NewString()))
	wrapped := spec
	wrapped.Command = p.timePath
	wrapped.Args = append([]string{"-f", "%M", "-o", sideFile, spec.Command}, spec.Args...)

	return wrapped, func() *int64 {
		defer os.Remove(sideFile)
		return readPeakKB(sideFile)
	}
}

// readPeakKB parses the side file written by GNU time. The peak RSS is the
// last line holding a bare integer; anything unparseable yields nil.
func readPeakKB(path string) *int64 {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}
		kb, err := strconv.ParseInt(line, 10, 64)
		if err != nil {
			return nil
		}
		return &kb
	}
	return nil
}
