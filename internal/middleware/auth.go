package middleware

import (
	"errors"
	"net/http"
	"strings"

	"procurement/internal/model"
	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const principalKey = "principal"

var errInvalidClaims = errors.New("invalid token claims")

// Auth validates access tokens and puts the caller's Principal on the request.
type Auth struct {
	secret []byte
	secure bool
}

// NewAuth builds the middleware. secure marks cookies Secure and SameSite=None,
// as needed by cross-origin frontends in release mode.
func NewAuth(secret []byte, secure bool) *Auth {
	return &Auth{secret: secret, secure: secure}
}

// SetTokenCookie stores the access token as an HttpOnly cookie
func (a *Auth) SetTokenCookie(c *gin.Context, accessToken string, maxAge int) {
	a.setSameSite(c)
	c.SetCookie("access_token", accessToken, maxAge, "/", "", a.secure, true)
}

// ClearTokenCookie removes the access token cookie
func (a *Auth) ClearTokenCookie(c *gin.Context) {
	a.setSameSite(c)
	c.SetCookie("access_token", "", -1, "/", "", a.secure, true)
}

func (a *Auth) setSameSite(c *gin.Context) {
	if a.secure {
		c.SetSameSite(http.SameSiteNoneMode)
		return
	}
	c.SetSameSite(http.SameSiteLaxMode)
}

// RequireAuth accepts any valid token.
func (a *Auth) RequireAuth() gin.HandlerFunc {
	return a.RequireRole()
}

// RequireRole validates the JWT token and, when roles are given, checks that
// the caller holds one of them.
func (a *Auth) RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Try cookie first, fallback to Authorization header
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHORIZED", "Authorization is missing", nil))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid authorization format. Expected 'Bearer <token>'", nil))
				return
			}
			tokenString = parts[1]
		}

		principal, err := ParsePrincipal(tokenString, a.secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.ErrorWithCode(http.StatusUnauthorized, "UNAUTHORIZED", "Invalid token: "+err.Error(), nil))
			return
		}

		if len(allowedRoles) > 0 && !hasRole(principal.Role, allowedRoles) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.ErrorWithCode(http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions", nil))
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// ParsePrincipal verifies an HMAC-signed token and reads the sub, company_id
// and role claims.
func ParsePrincipal(tokenString string, secret []byte) (model.Principal, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return secret, nil
	})
	if err != nil {
		return model.Principal{}, err
	}
	if !token.Valid {
		return model.Principal{}, jwt.ErrTokenInvalidClaims
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return model.Principal{}, errInvalidClaims
	}

	sub, _ := claims["sub"].(string)
	companyID, _ := claims["company_id"].(string)
	role, _ := claims["role"].(string)

	userUUID, err := uuid.Parse(sub)
	if err != nil {
		return model.Principal{}, errInvalidClaims
	}
	companyUUID, err := uuid.Parse(companyID)
	if err != nil {
		return model.Principal{}, errInvalidClaims
	}
	if !model.ValidRole(role) {
		return model.Principal{}, errInvalidClaims
	}

	return model.Principal{UserID: userUUID, CompanyID: companyUUID, Role: role}, nil
}

// GetPrincipal returns the caller set by RequireRole.
func GetPrincipal(c *gin.Context) (model.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return model.Principal{}, false
	}
	p, ok := v.(model.Principal)
	return p, ok
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
