package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"labloans/internal/authz"
	"labloans/internal/logger"
	"labloans/internal/models"
)

const callerKey = "caller"

type ctxKey struct{}

// UserLookup loads the profile behind a token subject.
type UserLookup interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type AuthMiddleware struct {
	log    *logger.Logger
	users  UserLookup
	secret []byte
}

func NewAuthMiddleware(log *logger.Logger, users UserLookup, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		log:    log.With("Middleware", "AuthMiddleware"),
		users:  users,
		secret: []byte(secret),
	}
}

// RequireAuth verifies the bearer token and attaches the caller's identity
// to both the gin context and the request context.
func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractBearer(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
			return
		}
		userID, err := ParseToken(am.secret, tokenString)
		if err != nil {
			am.log.Debug("RequireAuth: rejected token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
			return
		}
		user, err := am.users.GetUser(c.Request.Context(), userID)
		if err != nil {
			am.log.Debug("RequireAuth: unknown subject", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "No autorizado"})
			return
		}

		caller := authz.CallerFromUser(user)
		c.Set(callerKey, caller)
		c.Request = c.Request.WithContext(context.WithValue(c.Request.Context(), ctxKey{}, caller))
		c.Next()
	}
}

// CallerFrom returns the authenticated caller, or nil when RequireAuth did
// not run.
func CallerFrom(c *gin.Context) *authz.Caller {
	if v, ok := c.Get(callerKey); ok {
		if caller, ok := v.(*authz.Caller); ok {
			return caller
		}
	}
	return CallerFromContext(c.Request.Context())
}

func CallerFromContext(ctx context.Context) *authz.Caller {
	caller, _ := ctx.Value(ctxKey{}).(*authz.Caller)
	return caller
}

// SignToken issues an HS256 token whose subject is the user id.
func SignToken(secret string, userID uuid.UUID, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

func ParseToken(secret []byte, tokenString string) (uuid.UUID, error) {
	claims := &jwt.RegisteredClaims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	tok, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !tok.Valid {
		return uuid.Nil, errors.New("invalid or expired token")
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid user id in token: %w", err)
	}
	return id, nil
}

func extractBearer(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}
