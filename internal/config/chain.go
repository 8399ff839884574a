package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment variable names for chain configuration. Each one also accepts
// the NEXT_PUBLIC_ prefixed name used by the dashboard's .env.local.
const (
	EnvRPCURL        = "SOROBAN_RPC_URL"
	EnvPassphrase    = "NETWORK_PASSPHRASE"
	EnvContractID    = "COMMIT_ID"
	EnvTokenID       = "TOKEN_ID"
	EnvUserAddr      = "USER_ADDR"
	EnvBin           = "STELLAR_BIN"
	EnvNetwork       = "STELLAR_NETWORK"
	EnvAdminIdentity = "ADMIN_IDENTITY"
	EnvClaimSigner   = "CLAIM_SIGNER"
	EnvBalanceSource = "BALANCE_SOURCE"
	EnvIdentities    = "DEMO_IDENTITIES"
	EnvMintAmount    = "RESET_MINT_AMOUNT"
	EnvTierID        = "RESET_TIER_ID"
	EnvResetScript   = "RESET_SCRIPT"
	EnvResetDir      = "RESET_SCRIPT_DIR"
	EnvInvokeTimeout = "INVOKE_TIMEOUT"

	publicPrefix = "NEXT_PUBLIC_"
)

const (
	defaultBin           = "stellar"
	defaultNetwork       = "local"
	defaultAdminIdentity = "admin"
	defaultClaimSigner   = "user2"
	defaultIdentities    = "user1,user2"
	defaultMintAmount    = "1000"
	defaultTierID        = "0"
)

// Chain is the per-request view of the chain environment. It is loaded
// fresh for every operation so identity or deployment changes take effect
// without a restart.
type Chain struct {
	RPCURL        string
	Passphrase    string
	ContractID    string
	TokenID       string
	UserAddr      string
	Bin           string
	Network       string
	AdminIdentity string
	ClaimSigner   string
	BalanceSource string
	Identities    []string
	MintAmount    string
	TierID        string
	ResetScript   string
	ResetDir      string
	InvokeTimeout time.Duration
}

// MissingError reports required configuration that is absent.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Vars, ", "))
}

// LoadChain reads chain configuration from the process environment.
func LoadChain() (Chain, error) {
	return LoadChainFrom(os.Getenv)
}

// LoadChainFrom reads chain configuration through getenv. Values are
// trimmed; only malformed values produce an error; absent ones are
// reported later by Require.
func LoadChainFrom(getenv func(string) string) (Chain, error) {
	get := func(key, fallback string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		if v := strings.TrimSpace(getenv(publicPrefix + key)); v != "" {
			return v
		}
		return fallback
	}

	c := Chain{
		RPCURL:        get(EnvRPCURL, get("SOROBAN_RPC", "")),
		Passphrase:    get(EnvPassphrase, ""),
		ContractID:    get(EnvContractID, ""),
		TokenID:       get(EnvTokenID, ""),
		UserAddr:      get(EnvUserAddr, ""),
		Bin:           get(EnvBin, defaultBin),
		Network:       get(EnvNetwork, defaultNetwork),
		AdminIdentity: get(EnvAdminIdentity, defaultAdminIdentity),
		ClaimSigner:   get(EnvClaimSigner, defaultClaimSigner),
		MintAmount:    get(EnvMintAmount, defaultMintAmount),
		TierID:        get(EnvTierID, defaultTierID),
		ResetScript:   get(EnvResetScript, ""),
		ResetDir:      get(EnvResetDir, ""),
	}
	c.BalanceSource = get(EnvBalanceSource, c.ClaimSigner)
	c.Identities = splitList(get(EnvIdentities, defaultIdentities))
	if len(c.Identities) == 0 {
		return Chain{}, fmt.Errorf("invalid %s: no identity labels", EnvIdentities)
	}

	if _, err := strconv.ParseUint(c.TierID, 10, 32); err != nil {
		return Chain{}, fmt.Errorf("invalid %s: %w", EnvTierID, err)
	}
	if _, err := strconv.ParseUint(c.MintAmount, 10, 64); err != nil {
		return Chain{}, fmt.Errorf("invalid %s: %w", EnvMintAmount, err)
	}

	if v := get(EnvInvokeTimeout, ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Chain{}, fmt.Errorf("invalid %s: %w", EnvInvokeTimeout, err)
		}
		c.InvokeTimeout = d
	}

	return c, nil
}

// Require returns a *MissingError naming every listed variable that has no
// value, or nil when all are present.
func (c Chain) Require(keys ...string) error {
	var missing []string
	for _, key := range keys {
		if c.value(key) == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}
	return nil
}

// ToolEnv returns the extra environment handed to the CLI so it talks to
// the configured RPC endpoint and network.
func (c Chain) ToolEnv() []string {
	var env []string
	if c.RPCURL != "" {
		env = append(env, "STELLAR_RPC_URL="+c.RPCURL)
	}
	if c.Passphrase != "" {
		env = append(env, "STELLAR_NETWORK_PASSPHRASE="+c.Passphrase)
	}
	return env
}

func (c Chain) value(key string) string {
	switch key {
	case EnvRPCURL:
		return c.RPCURL
	case EnvPassphrase:
		return c.Passphrase
	case EnvContractID:
		return c.ContractID
	case EnvTokenID:
		return c.TokenID
	case EnvUserAddr:
		return c.UserAddr
	case EnvBin:
		return c.Bin
	case EnvNetwork:
		return c.Network
	case EnvAdminIdentity:
		return c.AdminIdentity
	case EnvClaimSigner:
		return c.ClaimSigner
	case EnvBalanceSource:
		return c.BalanceSource
	case EnvResetScript:
		return c.ResetScript
	case EnvResetDir:
		return c.ResetDir
	default:
		return ""
	}
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
