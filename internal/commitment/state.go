package commitment

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// UserState mirrors the contract's per-user record.
type UserState struct {
	Eligible   bool   `json:"eligible"`
	ClaimedNow bool   `json:"claimed_now"`
	Withdrawn  bool   `json:"withdrawn"`
	Locked     bool   `json:"locked"`
	TierID     uint32 `json:"tier_id"`
	LockedAt   uint64 `json:"locked_at"`
	UnlockAt   uint64 `json:"unlock_at"`
}

// The CLI prints u64 values either as JSON numbers or as quoted strings
// depending on its version.
type flexUint uint64

func (f *flexUint) UnmarshalJSON(b []byte) error {
	s := string(bytes.TrimSpace(b))
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("not an unsigned integer: %s", b)
	}
	*f = flexUint(v)
	return nil
}

type rawUserState struct {
	Eligible   *bool     `json:"eligible"`
	ClaimedNow *bool     `json:"claimed_now"`
	Withdrawn  *bool     `json:"withdrawn"`
	Locked     *bool     `json:"locked"`
	TierID     *flexUint `json:"tier_id"`
	LockedAt   *flexUint `json:"locked_at"`
	UnlockAt   *flexUint `json:"unlock_at"`
}

// ParseUserState reads the get_user output. Either every field is present
// and well-typed or a *ParseError carrying the raw text is returned.
func ParseUserState(out string) (UserState, error) {
	raw := strings.TrimSpace(out)
	fail := func(err error) (UserState, error) {
		return UserState{}, &ParseError{What: "user state", Raw: raw, Err: err}
	}
	if raw == "" {
		return fail(errors.New("empty output"))
	}

	var r rawUserState
	if err := json.Unmarshal([]byte(raw), &r); err != nil {
		return fail(err)
	}

	var missing []string
	check := func(name string, present bool) {
		if !present {
			missing = append(missing, name)
		}
	}
	check("eligible", r.Eligible != nil)
	check("claimed_now", r.ClaimedNow != nil)
	check("withdrawn", r.Withdrawn != nil)
	check("locked", r.Locked != nil)
	check("tier_id", r.TierID != nil)
	check("locked_at", r.LockedAt != nil)
	check("unlock_at", r.UnlockAt != nil)
	if len(missing) > 0 {
		return fail(fmt.Errorf("missing fields: %s", strings.Join(missing, ", ")))
	}
	if uint64(*r.TierID) > uint64(^uint32(0)) {
		return fail(fmt.Errorf("tier_id out of range: %d", *r.TierID))
	}

	return UserState{
		Eligible:   *r.Eligible,
		ClaimedNow: *r.ClaimedNow,
		Withdrawn:  *r.Withdrawn,
		Locked:     *r.Locked,
		TierID:     uint32(*r.TierID),
		LockedAt:   uint64(*r.LockedAt),
		UnlockAt:   uint64(*r.UnlockAt),
	}, nil
}

// NormalizeBalance strips surrounding whitespace and quote characters,
// however deeply the CLI wrapped the value.
func NormalizeBalance(out string) string {
	return strings.Trim(out, "\" \t\r\n")
}
