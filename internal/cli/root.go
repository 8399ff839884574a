// Package cli implements commitctl, which runs the dashboard operations
// from a terminal and prints the same JSON the HTTP surface returns.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/stellar-commitment/commitdash/internal/commitment"
	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
	"github.com/stellar-commitment/commitdash/internal/logging"
)

// ErrOperationFailed is returned when an operation reports ok=false. The
// envelope has already been printed.
var ErrOperationFailed = errors.New("operation failed")

// RootOptions holds global flags and injectable dependencies.
type RootOptions struct {
	User      string
	Timeout   time.Duration
	LogLevel  string
	LogFormat string
	Compact   bool

	// Chain loads the chain configuration. Defaults to config.LoadChain.
	Chain func() (config.Chain, error)
	// Runner builds the invoker. Defaults to invoker.NewExec.
	Runner func(logger *slog.Logger) invoker.Runner
}

// NewRootCommand creates the commitctl root command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	if opts.Chain == nil {
		opts.Chain = config.LoadChain
	}
	if opts.Runner == nil {
		opts.Runner = func(logger *slog.Logger) invoker.Runner { return invoker.NewExec(logger) }
	}

	cmd := &cobra.Command{
		Use:   "commitctl",
		Short: "Drive the commitment contract demo from a terminal",
		Long: `Run the commitment dashboard operations without the HTTP server.

Configuration comes from the same environment variables the server reads
(COMMIT_ID, TOKEN_ID, USER_ADDR, ...). Every command prints the JSON
envelope and exits non-zero when it reports ok=false.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.User, "user", "", "override USER_ADDR for this invocation")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 0, "per-invocation timeout (overrides INVOKE_TIMEOUT)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "warn", "log level written to stderr")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "text", "log format (json|text)")
	cmd.PersistentFlags().BoolVar(&opts.Compact, "compact", false, "print single-line JSON")

	type op func(*commitment.Service, context.Context, config.Chain) commitment.Outcome
	commands := []struct {
		use, short string
		run        op
	}{
		{"get-user", "Read the user record and token balance", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.GetUserAndBalance(ctx, c)
		}},
		{"get-user-state", "Read only the user record", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.GetUserState(ctx, c)
		}},
		{"get-balance", "Read the user's token balance", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.GetBalance(ctx, c)
		}},
		{"claim", "Claim for the user, signed by CLAIM_SIGNER", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.Claim(ctx, c)
		}},
		{"claim-now", "Claim for the user, signed by the identity owning the address", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.ClaimNow(ctx, c)
		}},
		{"reset-demo", "Make the other demo identity eligible and refund the contract", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.ResetDemo(ctx, c)
		}},
		{"reset-local", "Run the local redeploy script", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.ResetLocal(ctx, c)
		}},
		{"identities", "List the address of every demo identity", func(s *commitment.Service, ctx context.Context, c config.Chain) commitment.Outcome {
			return s.Identities(ctx, c)
		}},
	}
	for _, c := range commands {
		cmd.AddCommand(&cobra.Command{
			Use:   c.use,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runOperation(cmd, opts, c.run)
			},
		})
	}

	return cmd
}

func runOperation(cmd *cobra.Command, opts *RootOptions, run func(*commitment.Service, context.Context, config.Chain) commitment.Outcome) error {
	logger := logging.NewWithWriter(cmd.ErrOrStderr(), opts.LogLevel, opts.LogFormat)

	var out commitment.Outcome
	cfg, err := opts.Chain()
	if err != nil {
		out = commitment.ConfigFailure(err)
	} else {
		if opts.User != "" {
			cfg.UserAddr = opts.User
		}
		if opts.Timeout > 0 {
			cfg.InvokeTimeout = opts.Timeout
		}
		svc := commitment.NewService(opts.Runner(logger), logger)
		out = run(svc, cmd.Context(), cfg)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	if !opts.Compact {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if !out.Succeeded() {
		return ErrOperationFailed
	}
	return nil
}
