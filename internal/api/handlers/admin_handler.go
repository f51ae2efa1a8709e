package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/llm"
	"github.com/aadhaar-drishti/backend/internal/middleware/validation"
	"github.com/aadhaar-drishti/backend/internal/reporting"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

type AdminHandler struct {
	reports *reporting.Service
	advisor *llm.Advisor
}

func NewAdminHandler(reports *reporting.Service, advisor *llm.Advisor) *AdminHandler {
	return &AdminHandler{
		reports: reports,
		advisor: advisor,
	}
}

func serverError(c *fiber.Ctx, msg string, err error) error {
	logger.Error(msg, zap.String("path", c.Path()), zap.Error(err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error":   msg,
		"message": err.Error(),
	})
}

func (h *AdminHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.reports.Stats(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch aggregated stats", err)
	}
	return c.JSON(stats)
}

type districtQuery struct {
	State     string `query:"state"`
	RiskLevel string `query:"riskLevel" validate:"omitempty,oneof=Low Medium High Critical"`
}

func (h *AdminHandler) Districts(c *fiber.Ctx) error {
	var q districtQuery
	if err := c.QueryParser(&q); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid query parameters",
		})
	}

	if errs := validation.Struct(q); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "Invalid riskLevel. Use: Low, Medium, High, or Critical",
			"fields": errs,
		})
	}

	rows, err := h.reports.Districts(c.UserContext(), reporting.DistrictQuery{
		State:     validation.Sanitize(q.State),
		RiskLevel: models.RiskLevel(q.RiskLevel),
	})
	if err != nil {
		return serverError(c, "Failed to fetch district data", err)
	}
	return c.JSON(rows)
}

func (h *AdminHandler) UpdateGaps(c *fiber.Ctx) error {
	gaps, err := h.reports.UpdateGaps(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch update gaps", err)
	}
	return c.JSON(gaps)
}

func (h *AdminHandler) MigrationImpact(c *fiber.Ctx) error {
	points, err := h.reports.MigrationImpact(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch migration impact data", err)
	}
	return c.JSON(points)
}

func (h *AdminHandler) States(c *fiber.Ctx) error {
	states, err := h.reports.States(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to fetch states", err)
	}
	return c.JSON(states)
}

// Recommendations never fails on the generator; only a storage error gives
// a 500.
func (h *AdminHandler) Recommendations(c *fiber.Ctx) error {
	var req struct {
		Context string `json:"context"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid request body",
			})
		}
	}

	stats, err := h.reports.RecommendationContext(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to generate recommendations", err)
	}

	return c.JSON(h.advisor.Recommendations(c.UserContext(), stats, validation.Sanitize(req.Context)))
}
