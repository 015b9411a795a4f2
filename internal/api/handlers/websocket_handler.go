package handlers

import (
	"context"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/chat"
	"github.com/sitebot/backend/pkg/logger"
)

// WebSocketHandler drives a chat session over a socket, streaming replies
// word by word for a typing effect.
type WebSocketHandler struct {
	manager *chat.Manager
}

func NewWebSocketHandler(manager *chat.Manager) *WebSocketHandler {
	return &WebSocketHandler{
		manager: manager,
	}
}

func (h *WebSocketHandler) HandleConnection(c *websocket.Conn) {
	logger.Info("WebSocket connection established")

	defer func() {
		c.Close()
		logger.Info("WebSocket connection closed")
	}()

	for {
		var msg struct {
			Type      string `json:"type"`
			SessionID string `json:"session_id"`
			Content   string `json:"content"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			logger.Error("Failed to read WebSocket message", zap.Error(err))
			break
		}

		if msg.Type != "message" {
			continue
		}

		session, ok := h.manager.Get(msg.SessionID)
		if !ok {
			h.sendError(c, "session not found")
			continue
		}

		err = h.streamReply(c, session, msg.Content)
		if err != nil {
			logger.Error("Failed to stream reply", zap.Error(err))
			h.sendError(c, "failed to process message")
		}
	}
}

func (h *WebSocketHandler) streamReply(c *websocket.Conn, session *chat.Session, text string) error {
	h.sendChunk(c, "status", "Thinking...")

	reply, err := session.Submit(context.Background(), text)
	if err != nil {
		// Turn-limit and in-flight rejections are protocol events for the
		// client, not stream failures.
		return h.sendState(c, session, err.Error())
	}

	words := splitIntoWords(reply.Text)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return h.sendComplete(c, session, reply)
}

func (h *WebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	msg := map[string]interface{}{
		"type":    msgType,
		"content": content,
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendComplete(c *websocket.Conn, session *chat.Session, reply *chat.Message) error {
	msg := map[string]interface{}{
		"type":            "complete",
		"message_id":      reply.ID,
		"state":           session.State().String(),
		"user_turn_count": session.UserTurnCount(),
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendState(c *websocket.Conn, session *chat.Session, reason string) error {
	msg := map[string]interface{}{
		"type":   "rejected",
		"reason": reason,
		"state":  session.State().String(),
	}

	return c.WriteJSON(msg)
}

func (h *WebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	msg := map[string]interface{}{
		"type":  "error",
		"error": errorMsg,
	}

	c.WriteJSON(msg)
}

func splitIntoWords(text string) []string {
	words := []string{}
	currentWord := ""

	for _, char := range text {
		if char == ' ' || char == '\n' {
			if currentWord != "" {
				words = append(words, currentWord)
				currentWord = ""
			}
			if char == '\n' {
				words = append(words, "\n")
			}
		} else {
			currentWord += string(char)
		}
	}

	if currentWord != "" {
		words = append(words, currentWord)
	}

	return words
}
