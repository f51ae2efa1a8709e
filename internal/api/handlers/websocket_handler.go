package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/auth"
	"github.com/aadhaar-drishti/backend/internal/citizen"
	authmw "github.com/aadhaar-drishti/backend/internal/middleware/auth"
	"github.com/aadhaar-drishti/backend/internal/middleware/validation"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

const chatReplyTimeout = 60 * time.Second

type ChatWebSocketHandler struct {
	citizens *citizen.Service
}

func NewChatWebSocketHandler(citizens *citizen.Service) *ChatWebSocketHandler {
	return &ChatWebSocketHandler{
		citizens: citizens,
	}
}

// Upgrade only lets websocket handshakes through. It must run after
// RequireCitizen so the identity is already in Locals.
func (h *ChatWebSocketHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return c.Next()
}

func (h *ChatWebSocketHandler) HandleConnection(c *websocket.Conn) {
	id, ok := c.Locals(authmw.IdentityKey).(*auth.Identity)
	if !ok {
		h.sendError(c, "Access token required")
		c.Close()
		return
	}

	logger.Info("Chat connection established")

	defer func() {
		c.Close()
		logger.Info("Chat connection closed")
	}()

	for {
		var msg struct {
			Type    string `json:"type"`
			Content string `json:"content"`
		}

		err := c.ReadJSON(&msg)
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read chat message", zap.Error(err))
			}
			break
		}

		if msg.Type != "message" {
			continue
		}

		content := validation.Sanitize(msg.Content)
		if content == "" {
			h.sendError(c, "Message is required")
			continue
		}

		err = h.streamReply(c, *id, content)
		if errors.Is(err, citizen.ErrNoDistrictData) {
			h.sendError(c, "No district data available")
			continue
		}
		if err != nil {
			logger.Error("Failed to stream chat reply", zap.Error(err))
			h.sendError(c, "Failed to get chatbot response")
		}
	}
}

func (h *ChatWebSocketHandler) streamReply(c *websocket.Conn, id auth.Identity, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), chatReplyTimeout)
	defer cancel()

	if err := h.sendChunk(c, "status", "Thinking..."); err != nil {
		return err
	}

	reply, err := h.citizens.Chat(ctx, id, message)
	if err != nil {
		return err
	}

	words := splitIntoWords(reply.Response)
	for i, word := range words {
		chunk := word
		if i < len(words)-1 && word != "\n" {
			chunk += " "
		}

		if err := h.sendChunk(c, "chunk", chunk); err != nil {
			return err
		}
	}

	return c.WriteJSON(fiber.Map{
		"type":        "complete",
		"citizenData": reply.CitizenData,
	})
}

func (h *ChatWebSocketHandler) sendChunk(c *websocket.Conn, msgType, content string) error {
	return c.WriteJSON(fiber.Map{
		"type":    msgType,
		"content": content,
	})
}

func (h *ChatWebSocketHandler) sendError(c *websocket.Conn, errorMsg string) {
	if err := c.WriteJSON(fiber.Map{"type": "error", "error": errorMsg}); err != nil {
		logger.Debug("Failed to send chat error", zap.Error(err))
	}
}

// splitIntoWords splits on spaces and keeps newlines as their own tokens.
func splitIntoWords(text string) []string {
	words := []string{}
	start := -1

	for i, r := range text {
		if r == ' ' || r == '\n' {
			if start >= 0 {
				words = append(words, text[start:i])
				start = -1
			}
			if r == '\n' {
				words = append(words, "\n")
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}

	if start >= 0 {
		words = append(words, text[start:])
	}

	return words
}
