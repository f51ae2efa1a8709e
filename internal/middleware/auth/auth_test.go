package auth

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	citizenauth "github.com/aadhaar-drishti/backend/internal/auth"
)

func newApp(issuer *citizenauth.TokenIssuer) *fiber.App {
	app := fiber.New()
	app.Get("/me", RequireCitizen(issuer), func(c *fiber.Ctx) error {
		id, ok := Identity(c)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.JSON(id)
	})
	return app
}

func TestRequireCitizen(t *testing.T) {
	issuer := citizenauth.NewTokenIssuer("secret", time.Hour)
	token, err := issuer.Issue(citizenauth.Identity{Mobile: "9876543210", Last4Aadhaar: "1234"})
	require.NoError(t, err)

	cases := []struct {
		name   string
		target string
		header string
		status int
		errMsg string
	}{
		{name: "missing", target: "/me", status: fiber.StatusUnauthorized, errMsg: "Access token required"},
		{name: "not bearer", target: "/me", header: "Basic abc", status: fiber.StatusUnauthorized, errMsg: "Access token required"},
		{name: "garbage", target: "/me", header: "Bearer abc.def.ghi", status: fiber.StatusForbidden, errMsg: "Invalid or expired token"},
		{name: "valid header", target: "/me", header: "Bearer " + token, status: fiber.StatusOK},
		{name: "valid query", target: "/me?token=" + token, status: fiber.StatusOK},
	}

	app := newApp(issuer)
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tc.target, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}

			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tc.status, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			if tc.errMsg != "" {
				var out map[string]string
				require.NoError(t, json.Unmarshal(body, &out))
				assert.Equal(t, tc.errMsg, out["error"])
				return
			}

			var id citizenauth.Identity
			require.NoError(t, json.Unmarshal(body, &id))
			assert.Equal(t, "9876543210", id.Mobile)
			assert.Equal(t, "1234", id.Last4Aadhaar)
		})
	}
}
