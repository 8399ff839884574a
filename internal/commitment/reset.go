package commitment

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
)

// ResetDemo prepares the other demo identity for another one-time claim:
//
//  1. admin_set_eligible for the identity that is not cfg.UserAddr
//  2. mint cfg.MintAmount to the commitment contract
//
// The steps run in order and the first failure stops the sequence; a
// failed reset reports only the failing step. The configured user address
// is not changed.
func (s *Service) ResetDemo(ctx context.Context, cfg config.Chain) (resp ResetResponse) {
	defer recoverAs(s, "reset-demo", &resp, wrapReset)
	if err := cfg.Require(config.EnvContractID, config.EnvTokenID, config.EnvAdminIdentity); err != nil {
		resp = ResetResponse{Envelope: failure(err)}
		s.logOutcome("reset-demo", resp.Envelope)
		return resp
	}

	next, err := s.resolver.Alternate(ctx, cfg, cfg.UserAddr)
	if err != nil {
		resp = ResetResponse{Envelope: failure(err)}
		var resolution *ResolutionError
		if errors.As(err, &resolution) {
			resp.Candidates = resolution.CandidateAddresses()
		}
		s.logOutcome("reset-demo", resp.Envelope)
		return resp
	}

	eligible := contractCall(cfg, cfg.AdminIdentity, cfg.ContractID, true, "admin_set_eligible",
		arg{"user", next.Address},
		arg{"tier_id", cfg.TierID},
	)
	eligibleRes := s.run(ctx, cfg, eligible)
	if eligibleRes.Failed() {
		resp = ResetResponse{Envelope: stepFailure(StepSetEligible, eligible.String(), eligibleRes)}
		s.logOutcome("reset-demo", resp.Envelope, slog.String("target", next.Label))
		return resp
	}

	mint := contractCall(cfg, cfg.AdminIdentity, cfg.TokenID, true, "mint",
		arg{"to", cfg.ContractID},
		arg{"amount", cfg.MintAmount},
	)
	mintRes := s.run(ctx, cfg, mint)
	if mintRes.Failed() {
		resp = ResetResponse{Envelope: stepFailure(StepMintToContract, mint.String(), mintRes)}
		s.logOutcome("reset-demo", resp.Envelope, slog.String("target", next.Label))
		return resp
	}

	resp = ResetResponse{
		Envelope:         Envelope{OK: true},
		NextUserPrepared: next.Address,
		NextIdentity:     next.Label,
		Steps: &ResetSteps{
			SetEligible:    StepReport{Cmd: eligible.String(), Stdout: eligibleRes.Stdout},
			MintToContract: StepReport{Cmd: mint.String(), Stdout: mintRes.Stdout},
		},
	}
	s.logOutcome("reset-demo", resp.Envelope, slog.String("target", next.Label), slog.String("address", next.Address))
	return resp
}

// ResetLocal runs the configured redeploy script through a login shell,
// from cfg.ResetDir when set.
func (s *Service) ResetLocal(ctx context.Context, cfg config.Chain) (resp Envelope) {
	defer recoverAs(s, "reset-local", &resp, func(e Envelope) Envelope { return e })
	if err := cfg.Require(config.EnvResetScript); err != nil {
		resp = failure(err)
		s.logOutcome("reset-local", resp)
		return resp
	}

	script := shellQuote(cfg.ResetScript)
	if cfg.ResetDir != "" {
		script = "cd " + shellQuote(cfg.ResetDir) + " && " + script
	}
	cmd := invoker.Command{Name: "bash", Args: []string{"-lc", script}, Env: cfg.ToolEnv()}
	line := cmd.String()
	res := s.run(ctx, cfg, cmd)
	if res.Failed() {
		resp = toolFailure(line, res)
	} else {
		resp = succeeded(line, res)
	}
	s.logOutcome("reset-local", resp)
	return resp
}

// Identities reports the address of every known identity label.
func (s *Service) Identities(ctx context.Context, cfg config.Chain) (resp IdentitiesResponse) {
	defer recoverAs(s, "identities", &resp, wrapIdentities)
	candidates := s.resolver.Lookup(ctx, cfg)
	resp = IdentitiesResponse{Envelope: Envelope{OK: true}, Candidates: candidates}
	for _, c := range candidates {
		if c.LookupErr != "" {
			msg := c.Label + ": " + c.LookupErr
			resp.Envelope = Envelope{Kind: KindToolInvocation, Cmd: keysAddress(cfg, c.Label).String(), Error: msg, Stderr: strPtr(msg)}
			break
		}
	}
	s.logOutcome("identities", resp.Envelope)
	return resp
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func wrapReset(e Envelope) ResetResponse           { return ResetResponse{Envelope: e} }
func wrapIdentities(e Envelope) IdentitiesResponse { return IdentitiesResponse{Envelope: e} }
