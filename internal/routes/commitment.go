package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/stellar-commitment/commitdash/internal/commitment"
	"github.com/stellar-commitment/commitdash/internal/config"
)

type handler struct {
	svc   *commitment.Service
	chain func() (config.Chain, error)
}

// registerCommitmentRoutes wires the dashboard operations. writes guards
// chain writes and admin guards the reset routes.
func registerCommitmentRoutes(r fiber.Router, h *handler, writes, admin []fiber.Handler) {
	r.Get("/get-user", h.getUser)
	r.Get("/get-user-state", h.getUserState)
	r.Get("/get-balance", h.getBalance)

	// Claims sign a transaction. Get also registers HEAD, so only GET and
	// POST are added explicitly.
	claims := []struct {
		path   string
		handle fiber.Handler
	}{
		{"/claim", h.claim},
		{"/claim-now", h.claimNow},
	}
	for _, cl := range claims {
		r.Add(fiber.MethodGet, cl.path, chain(writes, cl.handle)...)
		r.Add(fiber.MethodPost, cl.path, chain(writes, cl.handle)...)
		r.All(cl.path, methodNotAllowed(fiber.MethodGet, fiber.MethodPost))
	}

	r.Post("/reset-demo", chain(admin, h.resetDemo)...)
	r.All("/reset-demo", methodNotAllowed(fiber.MethodPost))
	r.Post("/reset-local", chain(admin, h.resetLocal)...)
	r.All("/reset-local", methodNotAllowed(fiber.MethodPost))
}

func chain(mw []fiber.Handler, last fiber.Handler) []fiber.Handler {
	out := make([]fiber.Handler, 0, len(mw)+1)
	out = append(out, mw...)
	return append(out, last)
}

// respond writes resp with the status its envelope maps to.
func respond(c *fiber.Ctx, resp commitment.Outcome) error {
	return c.Status(resp.Status()).JSON(resp)
}

// load returns the chain configuration for this request, or writes the
// configuration failure and reports false.
func (h *handler) load(c *fiber.Ctx) (config.Chain, bool, error) {
	cfg, err := h.chain()
	if err != nil {
		env := commitment.ConfigFailure(err)
		return config.Chain{}, false, respond(c, env)
	}
	return cfg, true, nil
}

func (h *handler) getUser(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.GetUserAndBalance(c.UserContext(), cfg))
}

func (h *handler) getUserState(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.GetUserState(c.UserContext(), cfg))
}

func (h *handler) getBalance(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.GetBalance(c.UserContext(), cfg))
}

func (h *handler) claim(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.Claim(c.UserContext(), cfg))
}

func (h *handler) claimNow(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.ClaimNow(c.UserContext(), cfg))
}

func (h *handler) resetDemo(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.ResetDemo(c.UserContext(), cfg))
}

func (h *handler) resetLocal(c *fiber.Ctx) error {
	cfg, ok, err := h.load(c)
	if !ok {
		return err
	}
	return respond(c, h.svc.ResetLocal(c.UserContext(), cfg))
}
