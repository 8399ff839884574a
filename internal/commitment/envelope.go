package commitment

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/invoker"
)

// Step names reported by ResetDemo.
const (
	StepSetEligible    = "setEligible"
	StepMintToContract = "mintToContract"
)

// Envelope is the normalized result every operation returns. Stderr is
// null exactly when the operation succeeded.
type Envelope struct {
	OK     bool    `json:"ok"`
	Kind   Kind    `json:"kind,omitempty"`
	Cmd    string  `json:"cmd,omitempty"`
	Stdout *string `json:"stdout,omitempty"`
	Stderr *string `json:"stderr"`
	Error  string  `json:"error,omitempty"`
	Step   string  `json:"step,omitempty"`
}

// Status maps the envelope onto an HTTP status code.
func (e Envelope) Status() int {
	if e.OK {
		return http.StatusOK
	}
	switch e.Kind {
	case KindToolInvocation, KindParseFailure, KindStepFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Succeeded reports e.OK.
func (e Envelope) Succeeded() bool { return e.OK }

// Outcome is implemented by every operation response.
type Outcome interface {
	Status() int
	Succeeded() bool
}

// UserResponse is returned by GetUserState and GetUserAndBalance.
type UserResponse struct {
	Envelope
	User       *UserState `json:"user"`
	UserRaw    string     `json:"userRaw,omitempty"`
	UserErr    *string    `json:"userErr"`
	Balance    *string    `json:"balance"`
	BalanceErr *string    `json:"balanceErr"`
}

// BalanceResponse is returned by GetBalance.
type BalanceResponse struct {
	Envelope
	Balance *string `json:"balance"`
}

// ClaimResponse is returned by Claim.
type ClaimResponse struct {
	Envelope
	Args []string `json:"args,omitempty"`
}

// ClaimNowResponse is returned by ClaimNow.
type ClaimNowResponse struct {
	Envelope
	SignedAs    string            `json:"signedAs,omitempty"`
	EnvUserAddr string            `json:"envUserAddr,omitempty"`
	Candidates  map[string]string `json:"candidates,omitempty"`
}

// StepReport is the diagnostic record of one successful reset step.
type StepReport struct {
	Cmd    string  `json:"cmd"`
	Stdout string  `json:"stdout"`
	Stderr *string `json:"stderr"`
}

// ResetSteps holds both reset steps, in execution order.
type ResetSteps struct {
	SetEligible    StepReport `json:"setEligible"`
	MintToContract StepReport `json:"mintToContract"`
}

// ResetResponse is returned by ResetDemo.
type ResetResponse struct {
	Envelope
	NextUserPrepared string            `json:"nextUserPrepared,omitempty"`
	NextIdentity     string            `json:"nextIdentity,omitempty"`
	Steps            *ResetSteps       `json:"steps,omitempty"`
	Candidates       map[string]string `json:"candidates,omitempty"`
}

// IdentitiesResponse is returned by Identities.
type IdentitiesResponse struct {
	Envelope
	Candidates []Candidate `json:"candidates"`
}

func strPtr(s string) *string { return &s }

func succeeded(cmd string, res invoker.Result) Envelope {
	return Envelope{OK: true, Cmd: cmd, Stdout: strPtr(res.Stdout)}
}

func toolFailure(cmd string, res invoker.Result) Envelope {
	return Envelope{
		Kind:   KindToolInvocation,
		Cmd:    cmd,
		Stdout: strPtr(res.Stdout),
		Stderr: res.StderrPtr(),
		Error:  "command failed: " + diagnostic(res.Stderr),
	}
}

func stepFailure(step, cmd string, res invoker.Result) Envelope {
	env := toolFailure(cmd, res)
	env.Kind = KindStepFailure
	env.Step = step
	env.Error = fmt.Sprintf("%s failed: %s", step, diagnostic(res.Stderr))
	return env
}

func parseFailure(cmd string, err error) Envelope {
	return Envelope{Kind: KindParseFailure, Cmd: cmd, Error: err.Error(), Stderr: strPtr(err.Error())}
}

// failure classifies an error raised before any invocation ran.
func failure(err error) Envelope {
	var missing *config.MissingError
	var resolution *ResolutionError
	env := Envelope{Kind: KindInternal, Error: err.Error(), Stderr: strPtr(err.Error())}
	switch {
	case errors.As(err, &missing):
		env.Kind = KindConfigMissing
	case errors.As(err, &resolution):
		env.Kind = KindIdentityResolution
	}
	return env
}

// ConfigFailure reports a chain configuration that could not be loaded.
func ConfigFailure(err error) Envelope {
	env := failure(err)
	env.Kind = KindConfigMissing
	return env
}

func recovered(v any) Envelope {
	msg := fmt.Sprint(v)
	if err, ok := v.(error); ok {
		msg = err.Error()
	}
	if msg == "" {
		msg = "unknown error"
	}
	return Envelope{Kind: KindInternal, Error: msg, Stderr: strPtr(msg)}
}

// diagnostic summarizes a failed invocation's error stream by its first
// line. A stream holding only whitespace still failed.
func diagnostic(stderr string) string {
	if line := firstLine(stderr); line != "" {
		return line
	}
	return "blank diagnostic output"
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
