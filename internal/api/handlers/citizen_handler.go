package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/aadhaar-drishti/backend/internal/auth"
	"github.com/aadhaar-drishti/backend/internal/citizen"
	authmw "github.com/aadhaar-drishti/backend/internal/middleware/auth"
	"github.com/aadhaar-drishti/backend/internal/middleware/validation"
)

type CitizenHandler struct {
	otps     *auth.Service
	citizens *citizen.Service
}

func NewCitizenHandler(otps *auth.Service, citizens *citizen.Service) *CitizenHandler {
	return &CitizenHandler{
		otps:     otps,
		citizens: citizens,
	}
}

type sendOTPRequest struct {
	Mobile       string `json:"mobile" validate:"required"`
	Last4Aadhaar string `json:"last4Aadhaar" validate:"required"`
}

type verifyOTPRequest struct {
	Mobile       string `json:"mobile" validate:"required"`
	OTP          string `json:"otp" validate:"required"`
	Last4Aadhaar string `json:"last4Aadhaar" validate:"required"`
}

type chatRequest struct {
	Message string `json:"message" validate:"required"`
}

func (h *CitizenHandler) SendOTP(c *fiber.Ctx) error {
	var req sendOTPRequest
	if err := c.BodyParser(&req); err != nil || validation.Struct(req) != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mobile and last 4 digits of Aadhaar required",
		})
	}

	otp, err := h.otps.RequestOTP(c.UserContext(), req.Mobile, req.Last4Aadhaar)
	switch {
	case errors.Is(err, auth.ErrInvalidMobile):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid mobile number"})
	case errors.Is(err, auth.ErrInvalidAadhaar):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid Aadhaar digits"})
	case err != nil:
		return serverError(c, "Failed to send OTP", err)
	}

	return c.JSON(fiber.Map{
		"success":   true,
		"message":   "OTP sent successfully",
		"expiresIn": otp.ExpiresIn,
	})
}

func (h *CitizenHandler) VerifyOTP(c *fiber.Ctx) error {
	var req verifyOTPRequest
	if err := c.BodyParser(&req); err != nil || validation.Struct(req) != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Mobile, OTP, and last 4 Aadhaar digits required",
		})
	}

	session, err := h.otps.VerifyOTP(c.UserContext(), req.Mobile, req.OTP, req.Last4Aadhaar)
	switch {
	case errors.Is(err, auth.ErrOTPNotFound):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid OTP or Aadhaar number"})
	case errors.Is(err, auth.ErrOTPExpired):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "OTP expired. Please request a new one."})
	case errors.Is(err, auth.ErrOTPMismatch):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid OTP"})
	case err != nil:
		return serverError(c, "Failed to verify OTP", err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "OTP verified successfully",
		"token":   session.Token,
		"user": fiber.Map{
			"mobile":       session.User.Mobile,
			"last4Aadhaar": session.User.Last4Aadhaar,
		},
	})
}

func (h *CitizenHandler) Status(c *fiber.Ctx) error {
	id, ok := authmw.Identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Access token required"})
	}

	status, err := h.citizens.Status(c.UserContext(), *id)
	if errors.Is(err, citizen.ErrNoDistrictData) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No district data available"})
	}
	if err != nil {
		return serverError(c, "Failed to fetch citizen status", err)
	}

	return c.JSON(status)
}

func (h *CitizenHandler) Chatbot(c *fiber.Ctx) error {
	id, ok := authmw.Identity(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Access token required"})
	}

	var req chatRequest
	if err := c.BodyParser(&req); err != nil || validation.Struct(req) != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Message is required"})
	}

	reply, err := h.citizens.Chat(c.UserContext(), *id, validation.Sanitize(req.Message))
	if errors.Is(err, citizen.ErrNoDistrictData) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "No district data available"})
	}
	if err != nil {
		return serverError(c, "Failed to get chatbot response", err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"response":    reply.Response,
		"citizenData": reply.CitizenData,
	})
}
