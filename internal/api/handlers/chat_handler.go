package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/chat"
	"github.com/sitebot/backend/pkg/logger"
)

type ChatHandler struct {
	manager *chat.Manager
}

func NewChatHandler(manager *chat.Manager) *ChatHandler {
	return &ChatHandler{
		manager: manager,
	}
}

func (h *ChatHandler) GetSession(c *fiber.Ctx) error {
	session, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}

	return c.JSON(fiber.Map{
		"session_id":      session.ID,
		"state":           session.State().String(),
		"user_turn_count": session.UserTurnCount(),
		"messages":        messagesJSON(session.Messages()),
	})
}

// PostMessage submits one user turn and returns the assistant reply together
// with the session state after the turn.
func (h *ChatHandler) PostMessage(c *fiber.Ctx) error {
	session, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}

	var req struct {
		Text string `json:"text"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "text is required",
		})
	}

	reply, err := session.Submit(c.Context(), req.Text)
	if err != nil {
		return c.Status(submitStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
			"state": session.State().String(),
		})
	}

	return c.JSON(fiber.Map{
		"reply":           messageJSON(*reply),
		"state":           session.State().String(),
		"user_turn_count": session.UserTurnCount(),
	})
}

// Convert acknowledges the turn limit and moves the session into the
// conversion flow.
func (h *ChatHandler) Convert(c *fiber.Ctx) error {
	session, ok := h.manager.Get(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "session not found",
		})
	}

	if err := session.Convert(); err != nil {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
			"state": session.State().String(),
		})
	}

	return c.JSON(fiber.Map{
		"state": session.State().String(),
	})
}

// DeleteSession destroys the session, e.g. on restart with a new source.
func (h *ChatHandler) DeleteSession(c *fiber.Ctx) error {
	h.manager.Remove(c.Params("id"))
	return c.SendStatus(fiber.StatusNoContent)
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, chat.ErrTurnLimit), errors.Is(err, chat.ErrSessionOver):
		return fiber.StatusConflict
	case errors.Is(err, chat.ErrTurnInFlight):
		return fiber.StatusTooManyRequests
	default:
		return fiber.StatusInternalServerError
	}
}

func messagesJSON(messages []chat.Message) []fiber.Map {
	out := make([]fiber.Map, 0, len(messages))
	for _, msg := range messages {
		out = append(out, messageJSON(msg))
	}
	return out
}

func messageJSON(msg chat.Message) fiber.Map {
	return fiber.Map{
		"id":        msg.ID,
		"text":      msg.Text,
		"sender":    string(msg.Sender),
		"timestamp": msg.Timestamp.Unix(),
	}
}
