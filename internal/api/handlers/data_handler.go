package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/aadhaar-drishti/backend/internal/aggregation"
	"github.com/aadhaar-drishti/backend/internal/importer"
	"github.com/aadhaar-drishti/backend/internal/middleware/validation"
	"github.com/aadhaar-drishti/backend/internal/storage/models"
	"github.com/aadhaar-drishti/backend/pkg/logger"
)

// Importer loads one source file into a fact table.
type Importer interface {
	Import(ctx context.Context, req importer.Request) (*importer.Result, error)
}

// Aggregator recomputes every district summary.
type Aggregator interface {
	Run(ctx context.Context) (*aggregation.RunResult, error)
}

type DataHandler struct {
	importer   Importer
	aggregator Aggregator
}

func NewDataHandler(importer Importer, aggregator Aggregator) *DataHandler {
	return &DataHandler{
		importer:   importer,
		aggregator: aggregator,
	}
}

type importRequest struct {
	FilePath string `json:"filePath" validate:"required"`
	DataType string `json:"dataType" validate:"required"`
	Replace  bool   `json:"replace"`
}

func (h *DataHandler) Import(c *fiber.Ctx) error {
	var req importRequest
	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if errs := validation.Struct(req); errs != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error":  "filePath and dataType required",
			"fields": errs,
		})
	}

	kind, err := models.ParseImportKind(req.DataType)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid dataType. Use: biometric, demographic, or enrolment",
		})
	}

	result, err := h.importer.Import(c.UserContext(), importer.Request{
		Path:    req.FilePath,
		Kind:    kind,
		Replace: req.Replace,
	})
	if err != nil {
		logger.Error("Import failed",
			zap.String("path", req.FilePath),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		resp := fiber.Map{
			"error":   "Failed to import CSV",
			"message": err.Error(),
		}
		if result != nil {
			resp["count"] = result.Observed
		}
		return c.Status(fiber.StatusInternalServerError).JSON(resp)
	}

	failed := result.FailedBatches
	if failed == nil {
		failed = []importer.BatchFailure{}
	}

	return c.JSON(fiber.Map{
		"success":       true,
		"message":       result.Message(),
		"count":         result.Observed,
		"inserted":      result.Inserted,
		"skipped":       result.Skipped,
		"failedBatches": failed,
	})
}

func (h *DataHandler) CalculateMetrics(c *fiber.Ctx) error {
	result, err := h.aggregator.Run(c.UserContext())
	if err != nil {
		logger.Error("Metrics calculation failed", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   "Failed to calculate metrics",
			"message": err.Error(),
		})
	}

	failed := result.Failed
	if failed == nil {
		failed = []aggregation.DistrictFailure{}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": result.Message(),
		"failed":  failed,
	})
}
