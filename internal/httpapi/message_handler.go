package httpapi

import (
	"github.com/gofiber/fiber/v2"
)

// POST /api/messages/:sessionId/text
func (r *Router) sendText(c *fiber.Ctx) error {
	var req struct {
		To   string `json:"to"`
		Text string `json:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.To == "" || req.Text == "" {
		return badRequest(c, "to and text are required")
	}

	messageID, err := r.sessions.SendText(c.Context(), c.Params("sessionId"), req.To, req.Text)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"messageId": messageID})
}

// POST /api/messages/:sessionId/otp
func (r *Router) sendOTP(c *fiber.Ctx) error {
	var req struct {
		To          string `json:"to"`
		CompanyName string `json:"companyName"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.To == "" {
		return badRequest(c, "to is required")
	}

	rec, err := r.otp.Issue(c.Context(), c.Params("sessionId"), req.To, req.CompanyName)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCodeResponse(rec))
}
