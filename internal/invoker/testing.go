package invoker

import (
	"context"
	"strings"
	"sync"
)

type rule struct {
	prefix string
	result Result
}

// Script is a test double that answers invocations from canned results.
// Rules match on the rendered argument list (without the binary name); the
// longest matching prefix wins. Unmatched calls fail with a diagnostic.
type Script struct {
	mu    sync.Mutex
	rules []rule
	calls []Command
}

// NewScript returns an empty Script.
func NewScript() *Script {
	return &Script{}
}

// On registers result for invocations whose arguments start with prefix.
func (s *Script) On(prefix string, result Result) *Script {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules = append(s.rules, rule{prefix: prefix, result: result})
	return s
}

// OK is shorthand for a successful result printing stdout.
func (s *Script) OK(prefix, stdout string) *Script {
	return s.On(prefix, Result{Stdout: stdout})
}

// Fail is shorthand for a failing result printing stderr.
func (s *Script) Fail(prefix, stderr string) *Script {
	return s.On(prefix, Result{Stderr: stderr})
}

// Run implements Runner.
func (s *Script) Run(_ context.Context, cmd Command) Result {
	line := strings.Join(cmd.Args, " ")

	s.mu.Lock()
	defer s.mu.Unlock()
	cmd.Args = append([]string(nil), cmd.Args...)
	s.calls = append(s.calls, cmd)

	best := -1
	for i, r := range s.rules {
		if strings.HasPrefix(line, r.prefix) && (best < 0 || len(r.prefix) > len(s.rules[best].prefix)) {
			best = i
		}
	}
	if best < 0 {
		return Result{Stderr: "script: no rule for " + line}
	}
	return s.rules[best].result
}

// Calls returns a copy of every recorded invocation in arrival order.
func (s *Script) Calls() []Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Command(nil), s.calls...)
}

// Count returns how many recorded invocations contain method as an argument.
func (s *Script) Count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		for _, a := range c.Args {
			if a == method {
				n++
				break
			}
		}
	}
	return n
}
