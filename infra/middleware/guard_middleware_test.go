package middleware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

func newApp(handlers ...fiber.Handler) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(RequestID())
	for _, h := range handlers {
		app.Use(h)
	}
	return app
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return token
}

func TestErrorHandler(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"app error", apperr.ValidationFailed("bad"), 400, apperr.CodeValidationFailed},
		{"wrapped app error", errors.Join(errors.New("ctx"), apperr.NotFound("unit")), 404, apperr.CodeNotFound},
		{"fiber error", fiber.NewError(fiber.StatusConflict, "taken"), 409, apperr.CodeConflict},
		{"plain error", errors.New("boom"), 500, apperr.CodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp()
			app.Get("/", func(c *fiber.Ctx) error { return tt.err })

			resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}

			var body ErrorResponse
			data, _ := io.ReadAll(resp.Body)
			if err := json.Unmarshal(data, &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Success {
				t.Error("success should be false")
			}
			if body.Error.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Error.Code, tt.wantCode)
			}
			if body.RequestID == "" || body.RequestID != resp.Header.Get("X-Request-ID") {
				t.Errorf("request id %q does not match header %q", body.RequestID, resp.Header.Get("X-Request-ID"))
			}
		})
	}
}

func TestRequestID_Propagates(t *testing.T) {
	app := newApp()
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.UserContext().Value(logger.RequestIDKey).(string)
		return c.SendString(id)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	body, _ := io.ReadAll(resp.Body)
	if string(body) != "req-123" {
		t.Errorf("context request id = %q, want req-123", body)
	}
}

func TestRecover(t *testing.T) {
	app := newApp(Recover())
	app.Get("/", func(c *fiber.Ctx) error { panic("kaboom") })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestJWTAuth(t *testing.T) {
	const secret = "test-secret"

	valid := signToken(t, secret, jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	expired := signToken(t, secret, jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	wrongKey := signToken(t, "other-secret", jwt.MapClaims{
		"sub": "client-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	noSubject := signToken(t, secret, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	tests := []struct {
		name       string
		header     string
		query      string
		wantStatus int
	}{
		{"valid bearer", "Bearer " + valid, "", 200},
		{"valid query token", "", valid, 200},
		{"missing", "", "", 401},
		{"expired", "Bearer " + expired, "", 401},
		{"wrong key", "Bearer " + wrongKey, "", 401},
		{"no subject", "Bearer " + noSubject, "", 401},
		{"not bearer", "Basic " + valid, "", 401},
	}

	app := newApp(JWTAuth(secret, nil))
	app.Get("/", func(c *fiber.Ctx) error {
		id, _ := c.Locals(logger.ClientIDKey).(string)
		return c.SendString(id)
	})

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target := "/"
			if tt.query != "" {
				target += "?token=" + tt.query
			}
			req := httptest.NewRequest(fiber.MethodGet, target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
			if tt.wantStatus == 200 {
				body, _ := io.ReadAll(resp.Body)
				if string(body) != "client-1" {
					t.Errorf("client id = %q, want client-1", body)
				}
			}
		})
	}
}

func TestJWTAuth_DisabledWithoutSecret(t *testing.T) {
	app := newApp(JWTAuth("", nil))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Errorf("status = %d, want 204", resp.StatusCode)
	}
}

func TestJWTAuth_Revoked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	const secret = "test-secret"
	revocations := NewRevocations(client)
	token := signToken(t, secret, jwt.MapClaims{
		"sub": "client-1",
		"jti": "token-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	app := newApp(JWTAuth(secret, revocations))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	send := func() int {
		req := httptest.NewRequest(fiber.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		resp, err := app.Test(req)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode
	}

	if got := send(); got != fiber.StatusNoContent {
		t.Fatalf("before revoke status = %d, want 204", got)
	}
	if err := revocations.Revoke(context.Background(), "token-1", time.Hour); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if got := send(); got != fiber.StatusUnauthorized {
		t.Errorf("after revoke status = %d, want 401", got)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	app := newApp(rl.Handler())
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) })

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
		if err != nil {
			t.Fatal(err)
		}
		statuses = append(statuses, resp.StatusCode)
		if i == 2 && resp.Header.Get("Retry-After") == "" {
			t.Error("Retry-After should be set when limited")
		}
	}
	want := []int{204, 204, 429}
	for i := range want {
		if statuses[i] != want[i] {
			t.Errorf("request %d status = %d, want %d", i, statuses[i], want[i])
		}
	}

	// a new window resets the count
	now = now.Add(time.Minute + time.Second)
	resp, _ := app.Test(httptest.NewRequest(fiber.MethodGet, "/", nil))
	if resp.StatusCode != fiber.StatusNoContent {
		t.Errorf("after window status = %d, want 204", resp.StatusCode)
	}
}
