package engine

import (
	"context"
	"strings"

	"gavel/internal/judge/language"
	"gavel/internal/judge/runner"
)

// compileTimeoutMs bounds every compilation, independent of the problem's
// run limit.
const compileTimeoutMs = 10_000

// compileOutcome is the result of one compiler invocation. Output carries
// the combined compiler diagnostics even on success (warnings).
type compileOutcome struct {
	OK     bool
	Output string
}

// compile builds the source in workDir. Interpreted languages and languages
// without a compile template succeed immediately.
func (e *Engine) compile(ctx context.Context, lang *language.Language, srcPath, exePath, workDir string) (compileOutcome, error) {
	if !lang.Compiled() {
		return compileOutcome{OK: true}, nil
	}
	argv := lang.CompileCommand.Resolve(language.Vars{Src: srcPath, Exe: exePath, WorkDir: workDir})
	if len(argv) == 0 {
		return compileOutcome{OK: true}, nil
	}

	out, err := e.run.Run(ctx, runner.Spec{
		Command:   argv[0],
		Args:      argv[1:],
		WorkDir:   workDir,
		TimeoutMs: compileTimeoutMs,
	})
	if err != nil {
		return compileOutcome{}, err
	}

	diag := strings.TrimSpace(strings.TrimSpace(out.Stdout) + "\n" + strings.TrimSpace(out.Stderr))
	if out.TimedOut {
		if diag != "" {
			diag += "\n"
		}
		diag += "compilation timed out"
		return compileOutcome{OK: false, Output: diag}, nil
	}
	return compileOutcome{OK: out.Exited(), Output: diag}, nil
}
