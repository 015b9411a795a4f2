package handlers

import (
	"errors"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/sitebot/backend/internal/chat"
	"github.com/sitebot/backend/internal/errs"
	"github.com/sitebot/backend/internal/source"
	"github.com/sitebot/backend/pkg/logger"
)

type SourceHandler struct {
	manager *chat.Manager
}

func NewSourceHandler(manager *chat.Manager) *SourceHandler {
	return &SourceHandler{
		manager: manager,
	}
}

// CreateSource ingests a knowledge source and opens a chat session. Accepts
// either a JSON body describing a link, pasted text or a social profile, or
// a multipart upload with a "file" field for documents.
func (h *SourceHandler) CreateSource(c *fiber.Ctx) error {
	desc, err := h.parseDescriptor(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	session, err := h.manager.StartSession(c.Context(), desc)
	if err != nil {
		logger.Error("Ingestion failed",
			zap.String("source_kind", desc.Kind.String()),
			zap.Error(err),
		)
		return c.Status(ingestionStatus(err)).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"session_id": session.ID,
		"state":      session.State().String(),
		"messages":   messagesJSON(session.Messages()),
	})
}

func (h *SourceHandler) parseDescriptor(c *fiber.Ctx) (source.Descriptor, error) {
	if strings.Contains(c.Get("Content-Type"), "multipart/form-data") {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return source.Descriptor{}, errors.New("a file upload is required")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return source.Descriptor{}, errors.New("could not read uploaded file")
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			return source.Descriptor{}, errors.New("could not read uploaded file")
		}

		return source.NewDocument(data, fileHeader.Filename), nil
	}

	var req struct {
		Type     string `json:"type"`
		URL      string `json:"url"`
		Text     string `json:"text"`
		Platform string `json:"platform"`
		Handle   string `json:"handle"`
	}

	if err := c.BodyParser(&req); err != nil {
		return source.Descriptor{}, errors.New("invalid request body")
	}

	switch req.Type {
	case "link":
		if req.URL == "" {
			return source.Descriptor{}, errors.New("url is required for link sources")
		}
		return source.NewLink(req.URL), nil
	case "text":
		return source.NewPastedText(req.Text), nil
	case "social":
		if req.Platform == "" || req.Handle == "" {
			return source.Descriptor{}, errors.New("platform and handle are required for social sources")
		}
		return source.NewSocialProfile(req.Platform, req.Handle), nil
	default:
		return source.Descriptor{}, errors.New("type must be one of link, text, social")
	}
}

// ingestionStatus maps pipeline failures onto HTTP statuses: bad input is the
// caller's fault, everything else is an upstream/extraction problem.
func ingestionStatus(err error) int {
	var validationErr *errs.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest
	}

	var configErr *errs.ConfigurationError
	if errors.As(err, &configErr) {
		return fiber.StatusInternalServerError
	}

	return fiber.StatusUnprocessableEntity
}
