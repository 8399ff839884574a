// Package commitment orchestrates the commitment contract demo: it turns
// dashboard actions into chain CLI invocations, interprets their output and
// returns normalized envelopes.
//
// Every operation takes the chain configuration as an explicit value and
// holds no state between calls.
package commitment

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
)

// Service exposes the dashboard operations.
type Service struct {
	runner   invoker.Runner
	resolver *Resolver
	logger   *slog.Logger
}

// NewService builds a Service invoking the CLI through runner.
func NewService(runner invoker.Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{runner: runner, resolver: NewResolver(runner), logger: logger}
}

type arg struct {
	name  string
	value string
}

// contractCall builds
//
//	<bin> contract invoke --network <net> --source-account <source> --id <id> [--send=yes] -- <method> [--<name> <value> ...]
func contractCall(cfg config.Chain, source, id string, send bool, method string, args ...arg) invoker.Command {
	argv := []string{
		"contract", "invoke",
		"--network", cfg.Network,
		"--source-account", source,
		"--id", id,
	}
	if send {
		argv = append(argv, "--send=yes")
	}
	argv = append(argv, "--", method)
	for _, a := range args {
		argv = append(argv, "--"+a.name, a.value)
	}
	return invoker.Command{Name: cfg.Bin, Args: argv, Env: cfg.ToolEnv()}
}

func keysAddress(cfg config.Chain, label string) invoker.Command {
	return invoker.Command{Name: cfg.Bin, Args: []string{"keys", "address", label}, Env: cfg.ToolEnv()}
}

// run applies the configured per-invocation timeout, if any.
func run(ctx context.Context, runner invoker.Runner, cfg config.Chain, cmd invoker.Command) invoker.Result {
	if cfg.InvokeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.InvokeTimeout)
		defer cancel()
	}
	return runner.Run(ctx, cmd)
}

func (s *Service) run(ctx context.Context, cfg config.Chain, cmd invoker.Command) invoker.Result {
	return run(ctx, s.runner, cfg, cmd)
}

// parallel runs fns concurrently and waits for all of them. A panic in any
// of them is re-raised in the calling goroutine once all have returned, so
// the operation's deferred recoverAs turns it into an internal failure.
func parallel(fns ...func()) {
	var (
		g         errgroup.Group
		mu        sync.Mutex
		panicked  bool
		recovered any
	)
	for _, fn := range fns {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					mu.Lock()
					if !panicked {
						panicked, recovered = true, r
					}
					mu.Unlock()
				}
			}()
			fn()
			return nil
		})
	}
	_ = g.Wait()
	if panicked {
		panic(recovered)
	}
}

// recoverAs is deferred by every operation so a panic becomes an internal
// failure envelope instead of escaping to the transport.
func recoverAs[T any](s *Service, op string, resp *T, wrap func(Envelope) T) {
	if r := recover(); r != nil {
		env := recovered(r)
		s.logger.Error("operation panicked", slog.String("op", op), slog.String("error", env.Error))
		*resp = wrap(env)
	}
}

func (s *Service) logOutcome(op string, env Envelope, attrs ...any) {
	attrs = append(attrs, slog.String("op", op), slog.Bool("ok", env.OK))
	if env.OK {
		s.logger.Info("operation completed", attrs...)
		return
	}
	attrs = append(attrs, slog.String("kind", string(env.Kind)), slog.String("error", env.Error))
	if env.Cmd != "" {
		attrs = append(attrs, slog.String("cmd", env.Cmd))
	}
	if env.Step != "" {
		attrs = append(attrs, slog.String("step", env.Step))
	}
	s.logger.Warn("operation failed", attrs...)
}
