package commitment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stellar-commitment/commitdash/internal/config"
)

// GetUserState reads cfg.UserAddr's record from the commitment contract.
func (s *Service) GetUserState(ctx context.Context, cfg config.Chain) (resp UserResponse) {
	defer recoverAs(s, "get-user-state", &resp, wrapUser)
	if err := cfg.Require(config.EnvContractID, config.EnvUserAddr); err != nil {
		resp = UserResponse{Envelope: failure(err)}
		s.logOutcome("get-user-state", resp.Envelope)
		return resp
	}
	resp = s.readUser(ctx, cfg)
	s.logOutcome("get-user-state", resp.Envelope, slog.String("user", cfg.UserAddr))
	return resp
}

func (s *Service) readUser(ctx context.Context, cfg config.Chain) UserResponse {
	cmd := contractCall(cfg, cfg.AdminIdentity, cfg.ContractID, false, "get_user",
		arg{"user", cfg.UserAddr},
	)
	line := cmd.String()
	res := s.run(ctx, cfg, cmd)
	raw := strings.TrimSpace(res.Stdout)

	if res.Failed() {
		env := toolFailure(line, res)
		return UserResponse{Envelope: env, UserRaw: raw, UserErr: env.Stderr}
	}

	user, err := ParseUserState(res.Stdout)
	if err != nil {
		env := parseFailure(line, err)
		return UserResponse{Envelope: env, UserRaw: raw, UserErr: env.Stderr}
	}
	return UserResponse{Envelope: Envelope{OK: true, Cmd: line}, User: &user, UserRaw: raw}
}

// GetBalance reads cfg.UserAddr's balance from the token contract.
func (s *Service) GetBalance(ctx context.Context, cfg config.Chain) (resp BalanceResponse) {
	defer recoverAs(s, "get-balance", &resp, wrapBalance)
	if err := cfg.Require(config.EnvTokenID, config.EnvUserAddr); err != nil {
		resp = BalanceResponse{Envelope: failure(err)}
		s.logOutcome("get-balance", resp.Envelope)
		return resp
	}
	resp = s.readBalance(ctx, cfg)
	s.logOutcome("get-balance", resp.Envelope, slog.String("user", cfg.UserAddr))
	return resp
}

func (s *Service) readBalance(ctx context.Context, cfg config.Chain) BalanceResponse {
	cmd := contractCall(cfg, cfg.BalanceSource, cfg.TokenID, false, "balance",
		arg{"id", cfg.UserAddr},
	)
	line := cmd.String()
	res := s.run(ctx, cfg, cmd)
	if res.Failed() {
		return BalanceResponse{Envelope: toolFailure(line, res)}
	}

	balance := NormalizeBalance(res.Stdout)
	if balance == "" {
		err := &ParseError{What: "balance", Raw: res.Stdout, Err: errors.New("empty output")}
		return BalanceResponse{Envelope: parseFailure(line, err)}
	}
	return BalanceResponse{Envelope: Envelope{OK: true, Cmd: line}, Balance: &balance}
}

// GetUserAndBalance combines both reads. The balance is best-effort: when
// only it fails the response is still ok with BalanceErr set. When the
// user read fails the balance outcome is dropped.
func (s *Service) GetUserAndBalance(ctx context.Context, cfg config.Chain) (resp UserResponse) {
	defer recoverAs(s, "get-user", &resp, wrapUser)
	if err := cfg.Require(config.EnvContractID, config.EnvUserAddr); err != nil {
		resp = UserResponse{Envelope: failure(err)}
		s.logOutcome("get-user", resp.Envelope)
		return resp
	}

	var (
		user    UserResponse
		balance BalanceResponse
	)
	tokenErr := cfg.Require(config.EnvTokenID)

	reads := []func(){func() { user = s.readUser(ctx, cfg) }}
	if tokenErr == nil {
		reads = append(reads, func() { balance = s.readBalance(ctx, cfg) })
	}
	parallel(reads...)

	resp = user
	if !user.OK {
		s.logOutcome("get-user", resp.Envelope, slog.String("user", cfg.UserAddr))
		return resp
	}

	switch {
	case tokenErr != nil:
		resp.BalanceErr = strPtr(tokenErr.Error())
	case balance.OK:
		resp.Balance = balance.Balance
	default:
		msg := balance.Error
		if balance.Stderr != nil {
			msg = strings.TrimSpace(*balance.Stderr)
		}
		resp.BalanceErr = &msg
	}

	attrs := []any{slog.String("user", cfg.UserAddr)}
	if resp.BalanceErr != nil {
		attrs = append(attrs, slog.String("balance_error", *resp.BalanceErr))
	}
	s.logOutcome("get-user", resp.Envelope, attrs...)
	return resp
}

func wrapUser(e Envelope) UserResponse       { return UserResponse{Envelope: e} }
func wrapBalance(e Envelope) BalanceResponse { return BalanceResponse{Envelope: e} }
