package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	citizenauth "github.com/aadhaar-drishti/backend/internal/auth"
)

// IdentityKey is the fiber Locals key holding the verified *auth.Identity.
const IdentityKey = "citizen"

// TokenValidator turns a bearer token into a citizen identity.
type TokenValidator interface {
	Validate(token string) (*citizenauth.Identity, error)
}

// RequireCitizen rejects requests without a bearer token with 401 and
// requests with an invalid or expired one with 403. The websocket upgrade
// route may pass the token as ?token= instead.
func RequireCitizen(tokens TokenValidator) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := bearerToken(c.Get(fiber.HeaderAuthorization))
		if raw == "" {
			raw = c.Query("token")
		}
		if raw == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Access token required",
			})
		}

		id, err := tokens.Validate(raw)
		if err != nil {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "Invalid or expired token",
			})
		}

		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// Identity returns the citizen stored by RequireCitizen.
func Identity(c *fiber.Ctx) (*citizenauth.Identity, bool) {
	id, ok := c.Locals(IdentityKey).(*citizenauth.Identity)
	return id, ok
}
