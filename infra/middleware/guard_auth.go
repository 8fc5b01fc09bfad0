package middleware

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"

	"guard_server/pkg/apperr"
	"guard_server/pkg/logger"
)

// Revocations tracks revoked token ids in Redis.
type Revocations struct {
	redis  *redis.Client
	prefix string
}

// NewRevocations creates a revocation list. A nil client disables it.
func NewRevocations(client *redis.Client) *Revocations {
	return &Revocations{redis: client, prefix: "guard:token:revoked:"}
}

// Revoke marks a token id as revoked until expiry.
func (r *Revocations) Revoke(ctx context.Context, tokenID string, expiry time.Duration) error {
	if r == nil || r.redis == nil {
		return nil
	}
	return r.redis.Set(ctx, r.prefix+tokenID, "1", expiry).Err()
}

// IsRevoked checks whether a token id was revoked. Redis failures fail open.
func (r *Revocations) IsRevoked(ctx context.Context, tokenID string) bool {
	if r == nil || r.redis == nil {
		return false
	}
	n, err := r.redis.Exists(ctx, r.prefix+tokenID).Result()
	if err != nil {
		logger.WithError(err).Warn("token revocation check failed")
		return false
	}
	return n > 0
}

// JWTAuth validates HS256 bearer tokens and stores the subject as the client
// id. With an empty secret every request passes unauthenticated.
func JWTAuth(secret string, revocations *Revocations) fiber.Handler {
	if secret == "" {
		return func(c *fiber.Ctx) error { return c.Next() }
	}
	key := []byte(secret)

	return func(c *fiber.Ctx) error {
		// Skip auth for CORS preflight requests
		if c.Method() == fiber.MethodOptions {
			return c.Next()
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			return apperr.Unauthorized("missing authorization")
		}

		token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unsupported signing method: %v", token.Header["alg"])
			}
			return key, nil
		},
			jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
			jwt.WithLeeway(time.Minute),
		)
		if err != nil || !token.Valid {
			logger.WithError(err).Warn("JWT validation failed")
			return apperr.InvalidToken("invalid token")
		}

		claims, ok := token.Claims.(jwt.MapClaims)
		if !ok {
			return apperr.InvalidToken("invalid claims")
		}

		if jti, ok := claims["jti"].(string); ok && jti != "" {
			if revocations.IsRevoked(c.UserContext(), jti) {
				return apperr.InvalidToken("token has been revoked")
			}
		}

		subject, _ := claims.GetSubject()
		if subject == "" {
			return apperr.InvalidToken("missing subject")
		}

		c.Locals(logger.ClientIDKey, subject)
		c.SetUserContext(context.WithValue(c.UserContext(), logger.ClientIDKey, subject))
		return c.Next()
	}
}

// bearerToken reads the Authorization header, falling back to the token
// query parameter for EventSource clients that cannot set headers.
func bearerToken(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("token")
}
