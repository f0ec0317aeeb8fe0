// Package httpapi is the JSON adapter over the session manager and the
// verification ledger. It holds no domain logic.
package httpapi

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	actrepo "whatsapp-otp-gateway/internal/activity/repository"
	otpservice "whatsapp-otp-gateway/internal/otp/service"
	"whatsapp-otp-gateway/internal/phone"
	"whatsapp-otp-gateway/internal/session/manager"
	sessionrepo "whatsapp-otp-gateway/internal/session/repository"
)

// Router wires the HTTP routes onto the core services.
type Router struct {
	sessions  *manager.Manager
	otp       *otpservice.Service
	activity  actrepo.Repository     // optional, enables the activity endpoints
	summaries sessionrepo.Repository // optional, enables the durable session views
}

func NewRouter(sessions *manager.Manager, otp *otpservice.Service, activity actrepo.Repository, summaries sessionrepo.Repository) *Router {
	return &Router{sessions: sessions, otp: otp, activity: activity, summaries: summaries}
}

// App builds the fiber application with middleware and all routes registered.
func (r *Router) App() *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})

	app.Use(RecoveryMiddleware())
	app.Use(LoggerMiddleware())
	app.Use(CORSMiddleware())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	sessions := api.Group("/sessions")
	sessions.Post("/", r.createSession)
	sessions.Get("/", r.listSessions)
	if r.summaries != nil {
		// Registered before the :sessionId routes so "history" is not
		// taken for a session ID.
		sessions.Get("/history", r.sessionHistory)
	}
	sessions.Get("/:sessionId", r.getSession)
	sessions.Get("/:sessionId/qr", r.getPairingQR)
	sessions.Delete("/:sessionId", r.deleteSession)
	sessions.Post("/:sessionId/restart", r.restartSession)
	if r.activity != nil {
		sessions.Get("/:sessionId/activity", r.listActivity)
		sessions.Get("/:sessionId/stats", r.messageStats)
	}

	messages := api.Group("/messages")
	messages.Post("/:sessionId/text", r.sendText)
	messages.Post("/:sessionId/otp", r.sendOTP)

	otp := api.Group("/otp")
	otp.Post("/verify", r.verifyOTP)
	otp.Post("/resend", r.resendOTP)
	otp.Get("/status", r.otpStatus)
	otp.Post("/expire", r.expireOTP)
	otp.Get("/stats", r.otpStats)

	return app
}

// fail maps core errors onto HTTP statuses.
func fail(c *fiber.Ctx, err error) error {
	var rl *otpservice.RateLimitedError
	var nv *otpservice.NotVerifiableError
	switch {
	case errors.Is(err, manager.ErrAlreadyExists):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, manager.ErrNotFound), errors.Is(err, otpservice.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	case errors.Is(err, manager.ErrNotConnected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": err.Error()})
	case errors.As(err, &rl):
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"error":       err.Error(),
			"waitSeconds": int(rl.Wait.Seconds()),
		})
	case errors.As(err, &nv):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":       err.Error(),
			"status":      string(nv.Status),
			"attempts":    nv.Attempts,
			"maxAttempts": nv.MaxAttempts,
		})
	case errors.Is(err, phone.ErrEmpty):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}
