package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"whatsapp-otp-gateway/internal/otp/domain"
)

type codeResponse struct {
	ID          string     `json:"id"`
	SessionID   string     `json:"sessionId"`
	PhoneNumber string     `json:"phoneNumber"`
	Status      string     `json:"status"`
	MessageID   string     `json:"messageId,omitempty"`
	ExpiresAt   time.Time  `json:"expiresAt"`
	VerifiedAt  *time.Time `json:"verifiedAt,omitempty"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"maxAttempts"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// toCodeResponse deliberately omits the code itself: it only ever travels to
// the target phone.
func toCodeResponse(rec *domain.Code) codeResponse {
	return codeResponse{
		ID:          rec.ID,
		SessionID:   rec.SessionID,
		PhoneNumber: rec.PhoneNumber,
		Status:      string(rec.Status),
		MessageID:   rec.MessageID,
		ExpiresAt:   rec.ExpiresAt,
		VerifiedAt:  rec.VerifiedAt,
		Attempts:    rec.Attempts,
		MaxAttempts: rec.MaxAttempts,
		CreatedAt:   rec.CreatedAt,
	}
}

// POST /api/otp/verify
func (r *Router) verifyOTP(c *fiber.Ctx) error {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
		Code        string `json:"code"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.PhoneNumber == "" || req.Code == "" {
		return badRequest(c, "phoneNumber and code are required")
	}

	rec, err := r.otp.Verify(c.Context(), req.PhoneNumber, req.Code)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"verified": true, "record": toCodeResponse(rec)})
}

// POST /api/otp/resend
func (r *Router) resendOTP(c *fiber.Ctx) error {
	var req struct {
		SessionID   string `json:"sessionId"`
		PhoneNumber string `json:"phoneNumber"`
		CompanyName string `json:"companyName"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SessionID == "" || req.PhoneNumber == "" {
		return badRequest(c, "sessionId and phoneNumber are required")
	}

	rec, err := r.otp.Resend(c.Context(), req.SessionID, req.PhoneNumber, req.CompanyName)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toCodeResponse(rec))
}

// GET /api/otp/status?phoneNumber=...&sessionId=...
func (r *Router) otpStatus(c *fiber.Ctx) error {
	phoneNumber := c.Query("phoneNumber")
	if phoneNumber == "" {
		return badRequest(c, "phoneNumber is required")
	}
	rec, err := r.otp.Status(c.Context(), phoneNumber, c.Query("sessionId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(toCodeResponse(rec))
}

// POST /api/otp/expire
func (r *Router) expireOTP(c *fiber.Ctx) error {
	var req struct {
		PhoneNumber string `json:"phoneNumber"`
		SessionID   string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.PhoneNumber == "" {
		return badRequest(c, "phoneNumber is required")
	}

	n, err := r.otp.ExpireNow(c.Context(), req.PhoneNumber, req.SessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"expired": n})
}

// GET /api/otp/stats?phoneNumber=...&days=7
func (r *Router) otpStats(c *fiber.Ctx) error {
	phoneNumber := c.Query("phoneNumber")
	if phoneNumber == "" {
		return badRequest(c, "phoneNumber is required")
	}
	days := c.QueryInt("days", 7)
	if days <= 0 {
		days = 7
	}

	stats, err := r.otp.Stats(c.Context(), phoneNumber, time.Duration(days)*24*time.Hour)
	if err != nil {
		return fail(c, err)
	}
	out := make(map[string]int, len(stats))
	for status, n := range stats {
		out[string(status)] = n
	}
	return c.JSON(fiber.Map{"phoneNumber": phoneNumber, "days": days, "stats": out})
}
