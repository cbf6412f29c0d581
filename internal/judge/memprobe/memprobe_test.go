package memprobe

import (
	"os"
	"path/filepath"
	"testing"

	"gavel/internal/judge/runner"
)

func writeSideFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "side")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadPeakKB(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    *int64
	}{
		{"plain", "20480\n", intp(20480)},
		{"after wrapper noise", "Command exited with non-zero status 1\n1024\n", intp(1024)},
		{"garbage", "not a number\n", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := readPeakKB(writeSideFile(t, tc.content))
			switch {
			case tc.want == nil && got != nil:
				t.Errorf("got %d, want nil", *got)
			case tc.want != nil && (got == nil || *got != *tc.want):
				t.Errorf("got %v, want %d", got, *tc.want)
			}
		})
	}
}

func TestReadPeakKBMissingFile(t *testing.T) {
	if got := readPeakKB(filepath.Join(t.TempDir(), "absent")); got != nil {
		t.Errorf("got %d, want nil", *got)
	}
}

func intp(v int64) *int64 { return &v }

func TestUnavailableProbeLeavesSpecAlone(t *testing.T) {
	p := Unavailable()
	spec := runner.Spec{Command: "prog", Args: []string{"a"}, WorkDir: t.TempDir()}
	wrapped, read := p.Wrap(spec)
	if wrapped.Command != "prog" || len(wrapped.Args) != 1 {
		t.Errorf("spec changed: %+v", wrapped)
	}
	if read() != nil {
		t.Error("unavailable probe reported a memory reading")
	}
}

func TestWrapRewritesCommand(t *testing.T) {
	p := &Probe{timePath: "/usr/bin/time", available: true}
	dir := t.TempDir()
	wrapped, read := p.Wrap(runner.Spec{Command: "prog", Args: []string{"-x"}, WorkDir: dir})
	if wrapped.Command != "/usr/bin/time" {
		t.Errorf("command = %q", wrapped.Command)
	}
	if len(wrapped.Args) != 6 || wrapped.Args[0] != "-f" || wrapped.Args[1] != "%M" || wrapped.Args[2] != "-o" {
		t.Fatalf("args = %v", wrapped.Args)
	}
	sideFile := wrapped.Args[3]
	if wrapped.Args[4] != "prog" || wrapped.Args[5] != "-x" {
		t.Errorf("original command not preserved: %v", wrapped.Args)
	}
	if err := os.WriteFile(sideFile, []byte("512\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got := read()
	if got == nil || *got != 512 {
		t.Errorf("reading = %v, want 512", got)
	}
	if _, err := os.Stat(sideFile); !os.IsNotExist(err) {
		t.Error("side file not removed after read")
	}
}
