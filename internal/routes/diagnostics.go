package routes

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/stellar-commitment/commitdash/internal/config"
	"github.com/stellar-commitment/commitdash/internal/journal"
)

// registerDiagnosticRoutes wires the read-only operator endpoints: the
// environment check, identity listing and the invocation journal.
func registerDiagnosticRoutes(r fiber.Router, h *handler, j journal.Journal) {
	r.Get("/env", h.env)
	r.Get("/identities", h.identities)
	r.Get("/invocations", func(c *fiber.Ctx) error {
		if j == nil {
			return fiber.NewError(http.StatusNotFound, "invocation journal disabled")
		}
		limit := c.QueryInt("limit", 50)
		entries, err := j.Recent(c.UserContext(), limit)
		if errors.Is(err, journal.ErrInvalidLimit) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"ok": true, "invocations": entries})
	})
}

// env reports which chain variables are set, for the dashboard's
// environment check panel.
func (h *handler) env(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	missing := []string{}
	if err := cfg.Require(config.EnvRPCURL, config.EnvPassphrase, config.EnvContractID, config.EnvTokenID, config.EnvUserAddr); err != nil {
		var me *config.MissingError
		if errors.As(err, &me) {
			missing = me.Vars
		}
	}
	return c.JSON(fiber.Map{
		"ok":         len(missing) == 0,
		"rpcUrl":     cfg.RPCURL,
		"passphrase": cfg.Passphrase,
		"commitId":   cfg.ContractID,
		"tokenId":    cfg.TokenID,
		"userAddr":   cfg.UserAddr,
		"network":    cfg.Network,
		"identities": cfg.Identities,
		"missing":    missing,
	})
}

func (h *handler) identities(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.Identities(c.UserContext(), cfg))
}
