// Package auth identifies the human approver behind confirm and cancel
// calls. The authenticated name becomes the audit record's actor detail, so
// the trail answers "who authorized this".
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Approver is an authenticated human.
type Approver struct {
	Name     string `json:"name"`
	IssuedAt int64  `json:"iat"`
}

type claims struct {
	Approver Approver `json:"approver"`
	jwt.RegisteredClaims
}

// Config holds auth configuration.
type Config struct {
	JWTSecret       string
	TokenExpiration time.Duration
	RequireAuth     bool
}

// Manager issues and validates approver tokens.
type Manager struct {
	config Config
	secret []byte
}

func NewManager(config Config) *Manager {
	secret := config.JWTSecret
	if secret == "" {
		// Generate random secret (dev only)
		b := make([]byte, 32)
		rand.Read(b)
		secret = base64.StdEncoding.EncodeToString(b)
		log.Warn().Msg("using generated JWT secret; set JWT_SECRET for production")
	}

	return &Manager{
		config: config,
		secret: []byte(secret),
	}
}

// Middleware authenticates requests when RequireAuth is on. Health and
// login stay public.
func (m *Manager) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !m.config.RequireAuth {
				return next(c)
			}

			path := c.Path()
			if path == "/health" || path == "/login" {
				return next(c)
			}

			header := c.Request().Header.Get("Authorization")
			if header == "" {
				return c.JSON(401, map[string]string{"error": "missing authorization header"})
			}

			parts := strings.Split(header, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				return c.JSON(401, map[string]string{"error": "invalid authorization header format"})
			}

			approver, err := m.ValidateToken(parts[1])
			if err != nil {
				return c.JSON(401, map[string]string{"error": fmt.Sprintf("invalid token: %v", err)})
			}

			c.Set("approver", approver)
			return next(c)
		}
	}
}

// GenerateToken creates a JWT for an approver.
func (m *Manager) GenerateToken(approver Approver) (string, error) {
	expiration := m.config.TokenExpiration
	if expiration == 0 {
		expiration = 24 * time.Hour
	}

	now := time.Now()
	c := &claims{
		Approver: approver,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    "grounded-git-mcp",
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(m.secret)
}

// ValidateToken verifies a JWT and returns the approver.
func (m *Manager) ValidateToken(tokenString string) (*Approver, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if c, ok := token.Claims.(*claims); ok && token.Valid {
		return &c.Approver, nil
	}
	return nil, fmt.Errorf("invalid token")
}

// ApproverFromContext extracts the approver set by the middleware.
func ApproverFromContext(c echo.Context) *Approver {
	if approver, ok := c.Get("approver").(*Approver); ok {
		return approver
	}
	return nil
}
