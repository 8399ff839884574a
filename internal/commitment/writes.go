package commitment

import (
	"context"
	"errors"
	"log/slog"

	"github.com/stellar-commitment/commitdash/internal/config"
)

// Claim calls claim_now for cfg.UserAddr, signed by the fixed
// cfg.ClaimSigner identity. The signer is not derived from the user.
func (s *Service) Claim(ctx context.Context, cfg config.Chain) (resp ClaimResponse) {
	defer recoverAs(s, "claim", &resp, wrapClaim)
	if err := cfg.Require(config.EnvContractID, config.EnvUserAddr, config.EnvClaimSigner); err != nil {
		resp = ClaimResponse{Envelope: failure(err)}
		s.logOutcome("claim", resp.Envelope)
		return resp
	}

	cmd := contractCall(cfg, cfg.ClaimSigner, cfg.ContractID, true, "claim_now",
		arg{"user", cfg.UserAddr},
	)
	line := cmd.String()
	res := s.run(ctx, cfg, cmd)
	if res.Failed() {
		resp = ClaimResponse{Envelope: toolFailure(line, res), Args: cmd.Args}
	} else {
		resp = ClaimResponse{Envelope: succeeded(line, res), Args: cmd.Args}
	}
	s.logOutcome("claim", resp.Envelope, slog.String("signer", cfg.ClaimSigner), slog.String("user", cfg.UserAddr))
	return resp
}

// ClaimNow calls claim_now for cfg.UserAddr, signed by whichever known
// identity owns that address. Nothing is invoked when the address matches
// no identity. Eligibility is left to the contract.
func (s *Service) ClaimNow(ctx context.Context, cfg config.Chain) (resp ClaimNowResponse) {
	defer recoverAs(s, "claim-now", &resp, wrapClaimNow)
	if err := cfg.Require(config.EnvContractID, config.EnvUserAddr); err != nil {
		resp = ClaimNowResponse{Envelope: failure(err)}
		s.logOutcome("claim-now", resp.Envelope)
		return resp
	}

	signer, err := s.resolver.Resolve(ctx, cfg, cfg.UserAddr)
	if err != nil {
		resp = ClaimNowResponse{Envelope: failure(err), EnvUserAddr: cfg.UserAddr}
		var resolution *ResolutionError
		if errors.As(err, &resolution) {
			resp.Candidates = resolution.CandidateAddresses()
		}
		s.logOutcome("claim-now", resp.Envelope, slog.String("user", cfg.UserAddr))
		return resp
	}

	cmd := contractCall(cfg, signer.Label, cfg.ContractID, true, "claim_now",
		arg{"user", cfg.UserAddr},
	)
	line := cmd.String()
	res := s.run(ctx, cfg, cmd)
	if res.Failed() {
		resp = ClaimNowResponse{Envelope: toolFailure(line, res)}
	} else {
		resp = ClaimNowResponse{Envelope: succeeded(line, res), SignedAs: signer.Label}
	}
	s.logOutcome("claim-now", resp.Envelope, slog.String("signer", signer.Label), slog.String("user", cfg.UserAddr))
	return resp
}

func wrapClaim(e Envelope) ClaimResponse       { return ClaimResponse{Envelope: e} }
func wrapClaimNow(e Envelope) ClaimNowResponse { return ClaimNowResponse{Envelope: e} }
