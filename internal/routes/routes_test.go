package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/tontine/internal/config"
	"github.com/congo-pay/tontine/internal/kvstore"
	"github.com/congo-pay/tontine/internal/logging"
	"github.com/congo-pay/tontine/internal/metrics"
	"github.com/congo-pay/tontine/internal/session"
)

func testConfig(backend string) config.Config {
	return config.Config{
		AppName:         "Tontine",
		Env:             "test",
		StoreBackend:    backend,
		JWTSecret:       "test-secret",
		RefreshSecret:   "test-refresh-secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
		IdempotencyTTL:  time.Hour,
		DisplayLocale:   "fr",
		FreeQuota:       3,
		LoginAttempts:   5,
	}
}

type client struct {
	t     *testing.T
	app   *fiber.App
	token string
}

func (c *client) call(method, path, body string) (int, map[string]any) {
	c.t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if c.token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	}
	if method == fiber.MethodPost {
		req.Header.Set("Idempotency-Key", uuid.NewString())
	}
	resp, err := c.app.Test(req, -1)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	out := map[string]any{}
	_ = json.Unmarshal(raw, &out)
	return resp.StatusCode, out
}

func (c *client) login() {
	c.t.Helper()
	c.token = ""
	status, body := c.call(fiber.MethodPost, "/api/v1/auth/login",
		`{"country_code":"+242","phone":"06 000 00 00","pin":"1234","device_id":"android-1"}`)
	if status != fiber.StatusOK {
		c.t.Fatalf("login: %d %v", status, body)
	}
	c.token, _ = body["access_token"].(string)
}

func newRedisApp(t *testing.T) (*fiber.App, *session.Registry) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { cache.Close() })

	app := fiber.New()
	reg, err := Setup(app, Deps{
		Cfg:     testConfig(config.BackendRedis),
		Cache:   cache,
		Store:   kvstore.NewRedisStore(cache, ""),
		Metrics: metrics.New(),
		Logger:  logging.Discard(),
	})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	return app, reg
}

func TestUserJourneySurvivesLogout(t *testing.T) {
	app, reg := newRedisApp(t)
	c := &client{t: t, app: app}

	status, body := c.call(fiber.MethodPost, "/api/v1/identity/register",
		`{"country_code":"242","phone":"060000000","pin":"1234","device_id":"android-1"}`)
	if status != fiber.StatusCreated {
		t.Fatalf("register: %d %v", status, body)
	}
	c.login()

	c.call(fiber.MethodPost, "/api/v1/wallet/deposit", `{"amount":1000000,"method":"MTN MoMo"}`)
	status, body = c.call(fiber.MethodPost, "/api/v1/wallet/deposit", `{"amount":50000,"method":"Airtel Money"}`)
	if status != fiber.StatusCreated || body["balance"] != "1050000" {
		t.Fatalf("deposit: %d %v", status, body)
	}
	if status, _ := c.call(fiber.MethodPost, "/api/v1/objectives/goal", `{"title":"School fees"}`); status != fiber.StatusCreated {
		t.Fatalf("add goal: %d", status)
	}

	if status, _ := c.call(fiber.MethodPost, "/api/v1/auth/logout", ""); status != fiber.StatusOK {
		t.Fatalf("logout: %d", status)
	}
	if reg.Len() != 0 {
		t.Fatalf("expected session dropped on logout, %d live", reg.Len())
	}
	if status, _ := c.call(fiber.MethodGet, "/api/v1/wallet", ""); status != fiber.StatusUnauthorized {
		t.Fatalf("expected revoked token to be rejected, got %d", status)
	}

	c.login()
	status, body = c.call(fiber.MethodGet, "/api/v1/wallet", "")
	if status != fiber.StatusOK || body["balance"] != "1050000" {
		t.Fatalf("rehydrated wallet: %d %v", status, body)
	}
	status, body = c.call(fiber.MethodGet, "/api/v1/premium", "")
	if status != fiber.StatusOK || body["total"] != float64(1) {
		t.Fatalf("rehydrated objectives: %d %v", status, body)
	}
}

func TestMutationsRequireIdempotencyKeyWithRedis(t *testing.T) {
	app, _ := newRedisApp(t)
	c := &client{t: t, app: app}
	c.call(fiber.MethodPost, "/api/v1/identity/register",
		`{"country_code":"242","phone":"060000000","pin":"1234","device_id":"android-1"}`)
	c.login()

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/wallet/deposit", strings.NewReader(`{"amount":10}`))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer "+c.token)
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("expected 400 without Idempotency-Key, got %d", resp.StatusCode)
	}
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	app := fiber.New()
	if _, err := Setup(app, Deps{
		Cfg:    testConfig(config.BackendMemory),
		Store:  kvstore.NewMemory(),
		Logger: logging.Discard(),
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	c := &client{t: t, app: app}

	for _, path := range []string{"/api/v1/wallet", "/api/v1/premium", "/api/v1/objectives/goal"} {
		if status, _ := c.call(fiber.MethodGet, path, ""); status != fiber.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, status)
		}
	}

	status, body := c.call(fiber.MethodGet, "/healthz", "")
	if status != fiber.StatusOK {
		t.Fatalf("healthz: %d %v", status, body)
	}
}

func TestSetupRejectsMemoryStoreInProduction(t *testing.T) {
	cfg := testConfig(config.BackendMemory)
	cfg.Env = "production"
	if _, err := Setup(fiber.New(), Deps{Cfg: cfg, Store: kvstore.NewMemory(), Logger: logging.Discard()}); err == nil {
		t.Fatalf("expected error for memory store in production")
	}
}
