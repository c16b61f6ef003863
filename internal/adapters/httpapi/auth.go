package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"crmcore/pkg/domain"
)

const principalKey = "principal"

// Claims is the token payload. The subject is the acting user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// AuthMiddleware resolves the acting principal from an HS256 bearer token.
// Without a header the request proceeds anonymously when allowAnonymous is
// set and is rejected otherwise; a malformed or invalid token is always
// rejected.
func AuthMiddleware(secret []byte, allowAnonymous bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if !allowAnonymous {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing Authorization header"})
				return
			}
			c.Set(principalKey, domain.Principal{})
			c.Next()
			return
		}
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header format"})
			return
		}
		claims, err := parseToken(raw, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(principalKey, domain.Principal{UserID: claims.Subject, Email: claims.Email})
		c.Next()
	}
}

func parseToken(raw string, secret []byte) (*Claims, error) {
	if len(secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}
	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func principalFrom(c *gin.Context) domain.Principal {
	if v, ok := c.Get(principalKey); ok {
		if p, ok := v.(domain.Principal); ok {
			return p
		}
	}
	return domain.Principal{}
}
