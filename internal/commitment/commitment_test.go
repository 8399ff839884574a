package commitment

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
	"github.com/stellar-commitment/commitdash/internal/logging"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const (
	addrUser1 = "GUSER1AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	addrUser2 = "GUSER2AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	contract  = "CCOMMITAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	token     = "CTOKENAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

	getUserPrefix  = "contract invoke --network local --source-account admin --id " + contract + " -- get_user"
	balancePrefix  = "contract invoke --network local --source-account user2 --id " + token + " -- balance"
	setEligibleFix = "contract invoke --network local --source-account admin --id " + contract + " --send=yes -- admin_set_eligible"
	mintPrefix     = "contract invoke --network local --source-account admin --id " + token + " --send=yes -- mint"

	userJSON = `{"claimed_now":false,"eligible":true,"locked":false,"locked_at":0,"tier_id":1,"unlock_at":"7776000","withdrawn":false}`
)

func testChain(t *testing.T, env map[string]string) config.Chain {
	t.Helper()
	base := map[string]string{
		config.EnvContractID: contract,
		config.EnvTokenID:    token,
		config.EnvUserAddr:   addrUser1,
	}
	for k, v := range env {
		base[k] = v
	}
	cfg, err := config.LoadChainFrom(func(k string) string { return base[k] })
	require.NoError(t, err)
	return cfg
}

func withKeys(s *invoker.Script) *invoker.Script {
	return s.OK("keys address user1", addrUser1+"\n").OK("keys address user2", addrUser2+"\n")
}

func newService(s *invoker.Script) *Service {
	return NewService(s, logging.Discard())
}

func TestParseUserState(t *testing.T) {
	user, err := ParseUserState("\n" + userJSON + "\n")
	require.NoError(t, err)
	assert.Equal(t, UserState{Eligible: true, TierID: 1, UnlockAt: 7776000}, user)

	_, err = ParseUserState(`{"eligible":true,"tier_id":1}`)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, perr.Error(), "claimed_now")
	assert.Equal(t, `{"eligible":true,"tier_id":1}`, perr.Raw)

	_, err = ParseUserState("Error: contract not initialized")
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, "Error: contract not initialized", perr.Raw)

	_, err = ParseUserState("   ")
	require.Error(t, err)

	_, err = ParseUserState(`{"claimed_now":false,"eligible":true,"locked":false,"locked_at":0,"tier_id":-1,"unlock_at":0,"withdrawn":false}`)
	require.Error(t, err)
}

func TestNormalizeBalanceIsIdempotent(t *testing.T) {
	for _, in := range []string{`"5"`, `5`, `""5""`, " \"5\"\n", "5\n"} {
		got := NormalizeBalance(in)
		assert.Equal(t, "5", got, "input %q", in)
		assert.Equal(t, got, NormalizeBalance(got))
	}
	assert.Equal(t, "", NormalizeBalance(`""`))
}

func TestResolverMatchesExactlyOneOfFourIdentities(t *testing.T) {
	addrs := map[string]string{
		"alice": "GALICE", "bob": "GBOB", "carol": "GCAROL", "dave": "GDAVE",
	}
	script := invoker.NewScript()
	for label, addr := range addrs {
		script.OK("keys address "+label, addr+"\n")
	}
	cfg := testChain(t, map[string]string{config.EnvIdentities: "alice,bob,carol,dave"})
	r := NewResolver(script)
	ctx := context.Background()

	for label, addr := range addrs {
		id, err := r.Resolve(ctx, cfg, addr)
		require.NoError(t, err)
		assert.Equal(t, Identity{Label: label, Address: addr}, id)

		again, err := r.Resolve(ctx, cfg, addr)
		require.NoError(t, err)
		assert.Equal(t, id, again)
	}

	_, err := r.Resolve(ctx, cfg, "galice")
	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.ErrorIs(t, err, ErrNoIdentityMatch)
	assert.Len(t, rerr.Candidates, 4)
	assert.Equal(t, addrs, rerr.CandidateAddresses())
	assert.Equal(t, []string{"alice", "bob", "carol", "dave"}, labels(rerr.Candidates))
}

func labels(cs []Candidate) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, c.Label)
	}
	return out
}

func TestResolverNoMatchListsBothCandidates(t *testing.T) {
	script := withKeys(invoker.NewScript())
	cfg := testChain(t, nil)
	_, err := NewResolver(script).Resolve(context.Background(), cfg, "GSOMEONEELSE")

	var rerr *ResolutionError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, map[string]string{"user1": addrUser1, "user2": addrUser2}, rerr.CandidateAddresses())
	assert.Contains(t, err.Error(), addrUser1)
	assert.Contains(t, err.Error(), addrUser2)
}

func TestResolverRejectsAmbiguousMatch(t *testing.T) {
	script := invoker.NewScript().OK("keys address", addrUser1)
	_, err := NewResolver(script).Resolve(context.Background(), testChain(t, nil), addrUser1)
	assert.ErrorIs(t, err, ErrAmbiguousIdentity)
}

func TestResolverIgnoresFailedLookups(t *testing.T) {
	script := invoker.NewScript().
		OK("keys address user1", addrUser1).
		On("keys address user2", invoker.Result{Stdout: addrUser2, Stderr: "warning: keystore locked"})
	r := NewResolver(script)
	cfg := testChain(t, nil)

	id, err := r.Resolve(context.Background(), cfg, addrUser1)
	require.NoError(t, err)
	assert.Equal(t, "user1", id.Label)

	_, err = r.Resolve(context.Background(), cfg, addrUser2)
	assert.ErrorIs(t, err, ErrNoIdentityMatch)
}

func TestAlternate(t *testing.T) {
	script := withKeys(invoker.NewScript())
	r := NewResolver(script)
	cfg := testChain(t, nil)
	ctx := context.Background()

	cases := map[string]string{
		addrUser2: "user1",
		addrUser1: "user2",
		"GOTHER":  "user2",
		"":        "user2",
	}
	for current, want := range cases {
		id, err := r.Alternate(ctx, cfg, current)
		require.NoError(t, err)
		assert.Equal(t, want, id.Label, "current %q", current)
	}
}

func TestGetUserAndBalance(t *testing.T) {
	script := invoker.NewScript().
		OK(getUserPrefix, userJSON+"\n").
		OK(balancePrefix, "\"200000000\"\n")
	resp := newService(script).GetUserAndBalance(context.Background(), testChain(t, nil))

	require.True(t, resp.OK, resp.Error)
	require.NotNil(t, resp.User)
	assert.True(t, resp.User.Eligible)
	require.NotNil(t, resp.Balance)
	assert.Equal(t, "200000000", *resp.Balance)
	assert.Nil(t, resp.BalanceErr)
	assert.Nil(t, resp.Stderr)
	assert.Equal(t, "stellar "+getUserPrefix+" --user "+addrUser1, resp.Cmd)
}

func TestGetUserAndBalanceBalanceIsBestEffort(t *testing.T) {
	script := invoker.NewScript().
		OK(getUserPrefix, userJSON).
		Fail(balancePrefix, "error: token contract not found")
	resp := newService(script).GetUserAndBalance(context.Background(), testChain(t, nil))

	assert.True(t, resp.OK)
	assert.Equal(t, 200, resp.Status())
	assert.NotNil(t, resp.User)
	assert.Nil(t, resp.Balance)
	require.NotNil(t, resp.BalanceErr)
	assert.Equal(t, "error: token contract not found", *resp.BalanceErr)
}

func TestGetUserAndBalanceUserFailureWins(t *testing.T) {
	script := invoker.NewScript().
		Fail(getUserPrefix, "error: HostError: Error(Contract, #7)").
		OK(balancePrefix, "5")
	resp := newService(script).GetUserAndBalance(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, KindToolInvocation, resp.Kind)
	assert.Nil(t, resp.User)
	assert.Nil(t, resp.Balance)
	require.NotNil(t, resp.UserErr)
	assert.Contains(t, *resp.UserErr, "#7")
}

func TestGetUserAndBalanceParseFailureKeepsRaw(t *testing.T) {
	script := invoker.NewScript().
		OK(getUserPrefix, "not json at all").
		OK(balancePrefix, "5")
	resp := newService(script).GetUserAndBalance(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, KindParseFailure, resp.Kind)
	assert.Nil(t, resp.User)
	assert.Equal(t, "not json at all", resp.UserRaw)
	assert.Equal(t, 502, resp.Status())
}

func TestGetUserAndBalanceWithoutTokenID(t *testing.T) {
	script := invoker.NewScript().OK(getUserPrefix, userJSON)
	cfg := testChain(t, nil)
	cfg.TokenID = ""
	resp := newService(script).GetUserAndBalance(context.Background(), cfg)

	assert.True(t, resp.OK)
	require.NotNil(t, resp.BalanceErr)
	assert.Contains(t, *resp.BalanceErr, config.EnvTokenID)
	assert.Equal(t, 0, script.Count("balance"))
}

func TestGetBalance(t *testing.T) {
	script := invoker.NewScript().OK(balancePrefix, `""42""`)
	resp := newService(script).GetBalance(context.Background(), testChain(t, nil))
	require.True(t, resp.OK)
	assert.Equal(t, "42", *resp.Balance)

	script = invoker.NewScript().OK(balancePrefix, "\"\"\n")
	resp = newService(script).GetBalance(context.Background(), testChain(t, nil))
	assert.False(t, resp.OK)
	assert.Equal(t, KindParseFailure, resp.Kind)
	assert.Nil(t, resp.Balance)
}

func TestMissingConfigurationInvokesNothing(t *testing.T) {
	script := withKeys(invoker.NewScript())
	svc := newService(script)
	cfg := testChain(t, nil)
	cfg.ContractID = ""
	cfg.UserAddr = ""
	ctx := context.Background()

	outcomes := map[string]Envelope{
		"get-user":  svc.GetUserAndBalance(ctx, cfg).Envelope,
		"claim":     svc.Claim(ctx, cfg).Envelope,
		"claim-now": svc.ClaimNow(ctx, cfg).Envelope,
		"reset":     svc.ResetDemo(ctx, cfg).Envelope,
	}
	for op, env := range outcomes {
		assert.False(t, env.OK, op)
		assert.Equal(t, KindConfigMissing, env.Kind, op)
		assert.Contains(t, env.Error, config.EnvContractID, op)
	}
	assert.Empty(t, script.Calls())
}

func TestClaimUsesFixedSigner(t *testing.T) {
	script := invoker.NewScript().
		OK("contract invoke --network local --source-account user2 --id "+contract+" --send=yes -- claim_now", "200000000\n")
	resp := newService(script).Claim(context.Background(), testChain(t, nil))

	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "user2", resp.Args[5])
	assert.Equal(t, addrUser1, resp.Args[len(resp.Args)-1])
	assert.Equal(t, "200000000\n", *resp.Stdout)
	assert.Empty(t, script.Count("keys"))
}

func TestClaimFailurePreservesCommand(t *testing.T) {
	script := invoker.NewScript().
		On("contract invoke", invoker.Result{Stdout: "", Stderr: "error: HostError: Error(Contract, #2)\n"})
	resp := newService(script).Claim(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, KindToolInvocation, resp.Kind)
	calls := script.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, calls[0].String(), resp.Cmd)
	require.NotNil(t, resp.Stderr)
	assert.Contains(t, *resp.Stderr, "#2")
}

func TestClaimNowSignsAsResolvedIdentity(t *testing.T) {
	script := withKeys(invoker.NewScript()).
		OK("contract invoke --network local --source-account user1 --id "+contract+" --send=yes -- claim_now --user "+addrUser1, "200000000")
	resp := newService(script).ClaimNow(context.Background(), testChain(t, nil))

	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, "user1", resp.SignedAs)
	assert.Nil(t, resp.Stderr)

	raw, err := json.Marshal(resp)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"stderr":null`)
	assert.Contains(t, string(raw), `"signedAs":"user1"`)
}

func TestClaimNowUnknownAddressDoesNotInvoke(t *testing.T) {
	script := withKeys(invoker.NewScript())
	cfg := testChain(t, map[string]string{config.EnvUserAddr: "GSTRANGER"})
	resp := newService(script).ClaimNow(context.Background(), cfg)

	assert.False(t, resp.OK)
	assert.Equal(t, KindIdentityResolution, resp.Kind)
	assert.Equal(t, "GSTRANGER", resp.EnvUserAddr)
	assert.Equal(t, map[string]string{"user1": addrUser1, "user2": addrUser2}, resp.Candidates)
	assert.Equal(t, 0, script.Count("claim_now"))
}

func TestClaimNowChainRejectionIsToolFailure(t *testing.T) {
	script := withKeys(invoker.NewScript()).
		Fail("contract invoke", "error: HostError: Error(Contract, #2) NotEligible")
	resp := newService(script).ClaimNow(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, KindToolInvocation, resp.Kind)
	assert.Contains(t, resp.Cmd, "--source-account user1")
	assert.Contains(t, *resp.Stderr, "NotEligible")
	assert.Equal(t, 1, script.Count("claim_now"))
}

func TestResetDemoStopsAfterFailedEligibility(t *testing.T) {
	script := withKeys(invoker.NewScript()).
		Fail(setEligibleFix, "error: HostError: Error(Contract, #6)").
		OK(mintPrefix, "")
	resp := newService(script).ResetDemo(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, StepSetEligible, resp.Step)
	assert.Equal(t, KindStepFailure, resp.Kind)
	assert.Contains(t, resp.Cmd, "admin_set_eligible --user "+addrUser2+" --tier_id 0")
	assert.Equal(t, 0, script.Count("mint"))
	assert.Nil(t, resp.Steps)
}

func TestResetDemoReportsOnlyTheFailingMint(t *testing.T) {
	script := withKeys(invoker.NewScript()).
		OK(setEligibleFix, "").
		Fail(mintPrefix, "error: insufficient balance for fee")
	resp := newService(script).ResetDemo(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, StepMintToContract, resp.Step)
	assert.Contains(t, resp.Cmd, "mint --to "+contract+" --amount 1000")
	assert.Nil(t, resp.Steps)
	assert.Empty(t, resp.NextUserPrepared)
	assert.Equal(t, 1, script.Count("admin_set_eligible"))
	assert.Equal(t, 1, script.Count("mint"))
}

func TestResetDemoSuccessRunsStepsInOrder(t *testing.T) {
	script := withKeys(invoker.NewScript()).
		OK(setEligibleFix, "").
		OK(mintPrefix, "")
	cfg := testChain(t, map[string]string{config.EnvUserAddr: addrUser2})
	resp := newService(script).ResetDemo(context.Background(), cfg)

	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, addrUser1, resp.NextUserPrepared)
	assert.Equal(t, "user1", resp.NextIdentity)
	require.NotNil(t, resp.Steps)
	assert.Nil(t, resp.Steps.SetEligible.Stderr)
	assert.Contains(t, resp.Steps.MintToContract.Cmd, "--send=yes -- mint")

	var order []string
	for _, c := range script.Calls() {
		for _, a := range c.Args {
			if a == "admin_set_eligible" || a == "mint" {
				order = append(order, a)
			}
		}
	}
	assert.Equal(t, []string{"admin_set_eligible", "mint"}, order)
}

func TestResetLocal(t *testing.T) {
	script := invoker.NewScript().OK("-lc", "deployed\n")
	svc := newService(script)

	resp := svc.ResetLocal(context.Background(), testChain(t, nil))
	assert.Equal(t, KindConfigMissing, resp.Kind)
	assert.Empty(t, script.Calls())

	cfg := testChain(t, map[string]string{
		config.EnvResetScript: "/srv/commitment/scripts/reset-local.sh",
		config.EnvResetDir:    "/srv/commitment",
	})
	resp = svc.ResetLocal(context.Background(), cfg)
	require.True(t, resp.OK, resp.Error)
	calls := script.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "bash", calls[0].Name)
	assert.Equal(t, "cd '/srv/commitment' && '/srv/commitment/scripts/reset-local.sh'", calls[0].Args[1])
}

func TestIdentitiesReportsLookupFailure(t *testing.T) {
	script := invoker.NewScript().
		OK("keys address user1", addrUser1).
		Fail("keys address user2", "error: identity user2 not found")
	resp := newService(script).Identities(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	require.Len(t, resp.Candidates, 2)
	assert.Equal(t, addrUser1, resp.Candidates[0].Address)
	assert.Equal(t, "error: identity user2 not found", resp.Candidates[1].LookupErr)
}

func TestPanicsBecomeInternalFailures(t *testing.T) {
	runner := invoker.RunnerFunc(func(context.Context, invoker.Command) invoker.Result {
		panic(errors.New("runner exploded"))
	})
	resp := NewService(runner, logging.Discard()).Claim(context.Background(), testChain(t, nil))

	assert.False(t, resp.OK)
	assert.Equal(t, KindInternal, resp.Kind)
	assert.Equal(t, "runner exploded", resp.Error)
	assert.Equal(t, 500, resp.Status())
}

func explodingRunner() invoker.Runner {
	return invoker.RunnerFunc(func(context.Context, invoker.Command) invoker.Result {
		panic(errors.New("runner exploded"))
	})
}

func TestPanicsInConcurrentReadsBecomeInternalFailures(t *testing.T) {
	svc := NewService(explodingRunner(), logging.Discard())
	ctx := context.Background()
	cfg := testChain(t, nil)

	cases := map[string]Envelope{
		"get-user":   svc.GetUserAndBalance(ctx, cfg).Envelope,
		"claim-now":  svc.ClaimNow(ctx, cfg).Envelope,
		"reset-demo": svc.ResetDemo(ctx, cfg).Envelope,
		"identities": svc.Identities(ctx, cfg).Envelope,
	}
	for op, env := range cases {
		assert.False(t, env.OK, op)
		assert.Equal(t, KindInternal, env.Kind, op)
		assert.Equal(t, "runner exploded", env.Error, op)
		assert.Equal(t, 500, env.Status(), op)
	}
}

func TestPanicInOneLookupWaitsForTheOthers(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	runner := invoker.RunnerFunc(func(_ context.Context, cmd invoker.Command) invoker.Result {
		label := cmd.Args[len(cmd.Args)-1]
		if label == "user1" {
			panic("user1 exploded")
		}
		mu.Lock()
		seen = append(seen, label)
		mu.Unlock()
		return invoker.Result{Stdout: addrUser2}
	})
	cfg := testChain(t, map[string]string{config.EnvIdentities: "user1,user2,user3"})

	resp := NewService(runner, logging.Discard()).ClaimNow(context.Background(), cfg)

	assert.Equal(t, KindInternal, resp.Kind)
	assert.Equal(t, "user1 exploded", resp.Error)
	assert.ElementsMatch(t, []string{"user2", "user3"}, seen)
}

func TestGetUserState(t *testing.T) {
	ctx := context.Background()

	script := invoker.NewScript().OK(getUserPrefix, userJSON+"\n")
	resp := newService(script).GetUserState(ctx, testChain(t, nil))
	require.True(t, resp.OK, resp.Error)
	require.NotNil(t, resp.User)
	assert.Equal(t, uint64(7776000), resp.User.UnlockAt)
	assert.Nil(t, resp.Balance)
	assert.Nil(t, resp.Stderr)
	assert.Equal(t, 0, script.Count("balance"))

	script = invoker.NewScript().Fail(getUserPrefix, "error: HostError: Error(Storage, MissingValue)")
	resp = newService(script).GetUserState(ctx, testChain(t, nil))
	assert.False(t, resp.OK)
	assert.Equal(t, KindToolInvocation, resp.Kind)
	assert.Equal(t, 502, resp.Status())
	require.NotNil(t, resp.UserErr)
	assert.Contains(t, *resp.UserErr, "MissingValue")
	assert.Contains(t, resp.Cmd, "get_user")

	script = invoker.NewScript().OK(getUserPrefix, `{"eligible":true}`)
	resp = newService(script).GetUserState(ctx, testChain(t, nil))
	assert.False(t, resp.OK)
	assert.Equal(t, KindParseFailure, resp.Kind)
	assert.Equal(t, `{"eligible":true}`, resp.UserRaw)
	assert.Nil(t, resp.User)
}

func TestBlankStderrIsStillAFailure(t *testing.T) {
	script := invoker.NewScript().
		On("keys address user1", invoker.Result{Stdout: addrUser1, Stderr: "\n"}).
		OK("keys address user2", addrUser2).
		On(getUserPrefix, invoker.Result{Stdout: userJSON, Stderr: " \n"})
	svc := newService(script)
	ctx := context.Background()

	_, err := svc.resolver.Resolve(ctx, testChain(t, nil), addrUser1)
	var resolution *ResolutionError
	require.ErrorAs(t, err, &resolution)
	assert.Equal(t, "blank diagnostic output", resolution.Candidates[0].LookupErr)

	resp := svc.GetUserState(ctx, testChain(t, nil))
	assert.False(t, resp.OK)
	assert.Equal(t, KindToolInvocation, resp.Kind)
	assert.Equal(t, "command failed: blank diagnostic output", resp.Error)
	require.NotNil(t, resp.Stderr)
	assert.Equal(t, " \n", *resp.Stderr)
}
