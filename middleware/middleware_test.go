package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cultivation-core/config"
	"cultivation-core/content"
	"cultivation-core/models"
	"cultivation-core/services"
	"cultivation-core/store/storetest"
)

func decode(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestGatewayAuth(t *testing.T) {
	app := fiber.New()
	app.Use(GatewayAuthMiddleware("s3cret"))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"wrong", "Bearer nope", http.StatusUnauthorized},
		{"bearer", "Bearer s3cret", http.StatusOK},
		{"raw", "s3cret", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestUserContext(t *testing.T) {
	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/me", func(c *fiber.Ctx) error { return c.SendString(UserID(c)) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decode(t, resp)["code"])

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("X-User-ID", "user-42")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestActionGate(t *testing.T) {
	st := storetest.New(t)
	clock := services.NewFakeClock(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	core := services.NewCore(st, content.Default(), config.Bank{DepositCap: 1_000_000}, clock, services.NewScriptedRoller())

	require.NoError(t, st.DB.Create(&models.Player{ID: "busy", Name: "busy", Archetype: models.ArchetypeBody, State: models.StateCultivating, MaxResource: 10, Ring: "basic_ring"}).Error)
	require.NoError(t, st.DB.Create(&models.Player{ID: "debtor", Name: "debtor", Archetype: models.ArchetypeBody, MaxResource: 10, Ring: "basic_ring"}).Error)
	loan, err := core.Ledger.Borrow(t.Context(), "debtor", services.BorrowRequest{Amount: 1_000})
	require.NoError(t, err)
	require.True(t, loan.Success)

	app := fiber.New()
	app.Use(UserContextMiddleware())
	app.Get("/breakthrough", ActionGate(core.Gate, "breakthrough"), func(c *fiber.Ctx) error {
		if r := Reminder(c); r != nil {
			return c.JSON(fiber.Map{"reminder": r.AmountDue})
		}
		return c.JSON(fiber.Map{"ok": true})
	})

	call := func(user string) *http.Response {
		req := httptest.NewRequest(http.MethodGet, "/breakthrough", nil)
		req.Header.Set("X-User-ID", user)
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp := call("busy")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "BUSY", decode(t, resp)["code"])

	resp = call("nobody")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = call("debtor")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 1_010, decode(t, resp)["reminder"])

	clock.Advance(8 * 24 * time.Hour)
	resp = call("debtor")
	assert.Equal(t, http.StatusGone, resp.StatusCode)
	assert.Equal(t, "TERMINATED", decode(t, resp)["code"])
}
