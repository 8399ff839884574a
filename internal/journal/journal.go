// Package journal keeps an append-only record of CLI invocations for
// operators. Operations never read it back.
package journal

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stellar-commitment/commitdash/internal/invoker"
)

// ErrInvalidLimit is returned by Recent for a non-positive limit.
var ErrInvalidLimit = errors.New("limit must be positive")

// MaxRecent caps how many entries Recent returns.
const MaxRecent = 200

// Entry is one recorded invocation.
type Entry struct {
	ID        string        `json:"id"`
	RequestID string        `json:"request_id,omitempty"`
	Command   string        `json:"command"`
	OK        bool          `json:"ok"`
	Stdout    string        `json:"stdout"`
	Stderr    string        `json:"stderr,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration_ns"`
}

// Journal defines the contract implemented by journal backends.
type Journal interface {
	Append(ctx context.Context, entry Entry) error
	Recent(ctx context.Context, limit int) ([]Entry, error)
}

type requestIDKey struct{}

// WithRequestID tags ctx so journaled invocations carry the request id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id stored by WithRequestID.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Runner wraps next so every invocation is appended to j. Append failures
// are logged and never alter the invocation result.
func Runner(next invoker.Runner, j Journal, logger *slog.Logger) invoker.Runner {
	return invoker.RunnerFunc(func(ctx context.Context, cmd invoker.Command) invoker.Result {
		started := time.Now()
		res := next.Run(ctx, cmd)

		entry := Entry{
			ID:        uuid.NewString(),
			RequestID: RequestID(ctx),
			Command:   cmd.String(),
			OK:        !res.Failed(),
			Stdout:    res.Stdout,
			Stderr:    res.Stderr,
			StartedAt: started.UTC(),
			Duration:  time.Since(started),
		}

		// The request context may already be done after a caller timeout.
		appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := j.Append(appendCtx, entry); err != nil && logger != nil {
			logger.Warn("journal append failed", slog.String("cmd", entry.Command), slog.Any("error", err))
		}
		return res
	})
}

func clampLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, ErrInvalidLimit
	}
	if limit > MaxRecent {
		limit = MaxRecent
	}
	return limit, nil
}
