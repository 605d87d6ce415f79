package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/swiss-arbiter-api/internal/models"
	"github.com/noah-isme/swiss-arbiter-api/pkg/config"
	appErrors "github.com/noah-isme/swiss-arbiter-api/pkg/errors"
	"github.com/noah-isme/swiss-arbiter-api/pkg/response"
)

const (
	// ContextArbiterKey is the gin context key storing the arbiter claims.
	ContextArbiterKey = "currentArbiter"
	// ArbiterHeader carries a plain arbiter id when header fallback is enabled.
	ArbiterHeader = "X-Arbiter-ID"
)

// ArbiterAuth signs and verifies HS256 arbiter tokens.
type ArbiterAuth struct {
	secret         []byte
	issuer         string
	headerFallback bool
	now            func() time.Time
}

// NewArbiterAuth constructs the verifier from configuration.
func NewArbiterAuth(cfg config.JWTConfig) *ArbiterAuth {
	return &ArbiterAuth{
		secret:         []byte(cfg.Secret),
		issuer:         cfg.Issuer,
		headerFallback: cfg.HeaderFallback,
		now:            time.Now,
	}
}

// IssueToken signs a token for the arbiter. A zero ttl issues a token without expiry.
func (a *ArbiterAuth) IssueToken(arbiterID, name string, ttl time.Duration) (string, error) {
	if strings.TrimSpace(arbiterID) == "" {
		return "", appErrors.Validation("invalid arbiter", appErrors.FieldError{Field: "sub", Message: "arbiter id is required"})
	}
	issuedAt := a.now().UTC()
	claims := &models.ArbiterClaims{
		Name: name,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  arbiterID,
			Issuer:   a.issuer,
			IssuedAt: jwt.NewNumericDate(issuedAt),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(issuedAt.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}

// ParseToken validates the signature, expiry and issuer of a token.
func (a *ArbiterAuth) ParseToken(tokenString string) (*models.ArbiterClaims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.ParseWithClaims(tokenString, &models.ArbiterClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	claims, ok := token.Claims.(*models.ArbiterClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

// JWT requires an arbiter identity on the route.
func JWT(auth *ArbiterAuth) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if id := strings.TrimSpace(c.GetHeader(ArbiterHeader)); auth.headerFallback && id != "" {
				c.Set(ContextArbiterKey, &models.ArbiterClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: id}})
				c.Next()
				return
			}
			response.Error(c, appErrors.ErrUnauthorized)
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			response.Error(c, appErrors.Clone(appErrors.ErrUnauthorized, "invalid authorization header"))
			c.Abort()
			return
		}

		claims, err := auth.ParseToken(parts[1])
		if err != nil {
			response.Error(c, err)
			c.Abort()
			return
		}

		c.Set(ContextArbiterKey, claims)
		c.Next()
	}
}

// ArbiterID returns the authenticated arbiter, or "" on unauthenticated routes.
func ArbiterID(c *gin.Context) string {
	value, exists := c.Get(ContextArbiterKey)
	if !exists {
		return ""
	}
	claims, ok := value.(*models.ArbiterClaims)
	if !ok {
		return ""
	}
	return claims.ArbiterID()
}
