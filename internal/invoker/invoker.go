// Package invoker runs the external chain CLI and captures what it prints.
//
// The CLI is known to print warnings on its error stream while still
// exiting zero, so a Result is judged by its error stream alone: an empty
// Stderr is the only success signal. Runners never return Go errors; every
// failure mode (non-zero exit, launch failure, cancelled context) is
// rendered into Stderr.
package invoker

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the captured output of one invocation.
type Result struct {
	Stdout string
	Stderr string
}

// Failed reports whether the invocation produced any diagnostic output.
func (r Result) Failed() bool {
	return r.Stderr != ""
}

// StderrPtr returns nil on success and a pointer to the diagnostics
// otherwise, matching the null-on-success wire contract.
func (r Result) StderrPtr() *string {
	if !r.Failed() {
		return nil
	}
	s := r.Stderr
	return &s
}

// Command is one external invocation.
type Command struct {
	Name string
	Args []string
	// Env is appended to the inherited process environment.
	Env []string
}

// String renders the command with CommandLine.
func (c Command) String() string {
	return CommandLine(c.Name, c.Args)
}

// Runner executes a command and resolves to its Result.
type Runner interface {
	Run(ctx context.Context, cmd Command) Result
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, cmd Command) Result

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, cmd Command) Result {
	return f(ctx, cmd)
}

// Exec runs commands on the host with the caller's environment.
type Exec struct {
	Logger *slog.Logger
}

// NewExec builds an Exec runner.
func NewExec(logger *slog.Logger) *Exec {
	return &Exec{Logger: logger}
}

// Run executes c and waits for it to exit. No timeout is applied here;
// callers wanting one set a deadline on ctx.
func (e *Exec) Run(ctx context.Context, c Command) Result {
	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if e.Logger != nil {
		e.Logger.Debug("invoke", slog.String("cmd", c.String()))
	}

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
	if res.Stderr == "" && err != nil {
		res.Stderr = describe(ctx, err)
	}

	if res.Failed() && e.Logger != nil {
		e.Logger.Warn("invoke failed",
			slog.String("cmd", c.String()),
			slog.String("stderr", strings.TrimSpace(res.Stderr)),
		)
	}
	return res
}

func describe(ctx context.Context, err error) string {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "invocation aborted: " + ctxErr.Error()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return "command exited with status " + strconv.Itoa(exitErr.ExitCode())
	}
	return err.Error()
}

// CommandLine renders name and args as a single shell-pasteable line.
// Arguments containing whitespace, quotes or shell metacharacters are
// double-quoted.
func CommandLine(name string, args []string) string {
	var b strings.Builder
	b.WriteString(quoteArg(name))
	for _, arg := range args {
		b.WriteByte(' ')
		b.WriteString(quoteArg(arg))
	}
	return b.String()
}

func quoteArg(arg string) string {
	if arg == "" {
		return `""`
	}
	if strings.ContainsAny(arg, " \t\n\"'\\$`&|;<>()*?!#~") {
		return strconv.Quote(arg)
	}
	return arg
}
