package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"whatsapp-otp-gateway/internal/session/domain"
)

type sessionResponse struct {
	SessionID      string     `json:"sessionId"`
	State          string     `json:"state"`
	RemoteUserID   string     `json:"remoteUserId,omitempty"`
	RemoteUserName string     `json:"remoteUserName,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	ConnectedAt    *time.Time `json:"connectedAt,omitempty"`
	DisconnectedAt *time.Time `json:"disconnectedAt,omitempty"`
	LastSeenAt     time.Time  `json:"lastSeenAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

func toSessionResponse(sess domain.Session) sessionResponse {
	return sessionResponse{
		SessionID:      sess.SessionID,
		State:          string(sess.State),
		RemoteUserID:   sess.RemoteUserID,
		RemoteUserName: sess.RemoteUserName,
		LastError:      sess.LastError,
		ConnectedAt:    sess.ConnectedAt,
		DisconnectedAt: sess.DisconnectedAt,
		LastSeenAt:     sess.LastSeenAt,
		CreatedAt:      sess.CreatedAt,
	}
}

// POST /api/sessions
func (r *Router) createSession(c *fiber.Ctx) error {
	var req struct {
		SessionID string `json:"sessionId"`
	}
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.SessionID == "" {
		return badRequest(c, "sessionId is required")
	}

	sess, err := r.sessions.CreateSession(c.Context(), req.SessionID)
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toSessionResponse(sess))
}

// GET /api/sessions
func (r *Router) listSessions(c *fiber.Ctx) error {
	all := r.sessions.ListSessions()
	out := make([]sessionResponse, 0, len(all))
	for _, sess := range all {
		out = append(out, toSessionResponse(sess))
	}
	return c.JSON(fiber.Map{"sessions": out})
}

// GET /api/sessions/:sessionId
//
// Falls back to the durable summary row so terminated sessions (and sessions
// from before a restart) stay inspectable.
func (r *Router) getSession(c *fiber.Ctx) error {
	id := c.Params("sessionId")
	if sess, ok := r.sessions.GetSession(id); ok {
		return c.JSON(toSessionResponse(sess))
	}
	if r.summaries != nil {
		sess, err := r.summaries.FindByID(c.Context(), id)
		if err != nil {
			return fail(c, err)
		}
		if sess != nil {
			return c.JSON(toSessionResponse(*sess))
		}
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "session not found"})
}

// GET /api/sessions/history
func (r *Router) sessionHistory(c *fiber.Ctx) error {
	all, err := r.summaries.List(c.Context())
	if err != nil {
		return fail(c, err)
	}
	out := make([]sessionResponse, 0, len(all))
	for _, sess := range all {
		out = append(out, toSessionResponse(*sess))
	}
	return c.JSON(fiber.Map{"sessions": out})
}

// GET /api/sessions/:sessionId/qr
func (r *Router) getPairingQR(c *fiber.Ctx) error {
	artifact, ok := r.sessions.PairingArtifact(c.Params("sessionId"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "no pairing QR available"})
	}
	return c.JSON(fiber.Map{
		"qr":       artifact.Data,
		"issuedAt": artifact.IssuedAt,
	})
}

// DELETE /api/sessions/:sessionId
func (r *Router) deleteSession(c *fiber.Ctx) error {
	if err := r.sessions.RemoveSession(c.Context(), c.Params("sessionId")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"deleted": true})
}

// POST /api/sessions/:sessionId/restart
func (r *Router) restartSession(c *fiber.Ctx) error {
	if err := r.sessions.RestartSession(c.Context(), c.Params("sessionId")); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"restarted": true})
}

// GET /api/sessions/:sessionId/activity
func (r *Router) listActivity(c *fiber.Ctx) error {
	limit := int32(c.QueryInt("limit", 50))
	records, err := r.activity.ListBySession(c.Context(), c.Params("sessionId"), limit)
	if err != nil {
		return fail(c, err)
	}
	type entry struct {
		ID           string    `json:"id"`
		Action       string    `json:"action"`
		Status       string    `json:"status"`
		PhoneNumber  string    `json:"phoneNumber,omitempty"`
		MessageID    string    `json:"messageId,omitempty"`
		Detail       string    `json:"detail,omitempty"`
		ErrorMessage string    `json:"errorMessage,omitempty"`
		CreatedAt    time.Time `json:"createdAt"`
	}
	out := make([]entry, 0, len(records))
	for _, rec := range records {
		out = append(out, entry{
			ID:           rec.ID,
			Action:       rec.Action,
			Status:       rec.Status,
			PhoneNumber:  rec.PhoneNumber,
			MessageID:    rec.MessageID,
			Detail:       rec.Detail,
			ErrorMessage: rec.ErrorMessage,
			CreatedAt:    rec.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"activity": out})
}

// GET /api/sessions/:sessionId/stats
func (r *Router) messageStats(c *fiber.Ctx) error {
	stats, err := r.activity.MessageStats(c.Context(), c.Params("sessionId"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"stats": stats})
}
