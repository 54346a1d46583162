package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

var logger *zap.Logger

func init() {
	logger = zap.L().With(zap.String("package", "auth"))
}

// Console roles. Admin satisfies every role check.
const (
	RoleIssuer  = "issuer"
	RoleRevoker = "revoker"
	RoleAdmin   = "admin"
)

// MinSecretLength is the shortest HS256 key accepted.
const MinSecretLength = 32

const claimsKey = "claims"

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrForbidden    = errors.New("auth: missing required role")
	ErrWeakSecret   = fmt.Errorf("auth: token secret must be at least %d bytes", MinSecretLength)
)

// Claims is the payload of a console token.
type Claims struct {
	Subject  string   `json:"sub"`
	Roles    []string `json:"roles"`
	IssuedAt int64    `json:"iat"`
	Expiry   int64    `json:"exp"`
}

// HasRole reports whether the claims grant role, directly or through admin.
func (c *Claims) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role || r == RoleAdmin {
			return true
		}
	}
	return false
}

// Issuer signs console tokens.
type Issuer struct {
	signer jose.Signer
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer returns an Issuer whose tokens expire after ttl.
func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: secret}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return nil, fmt.Errorf("auth: failed to create signer: %w", err)
	}
	return &Issuer{signer: signer, ttl: ttl, now: time.Now}, nil
}

// Issue returns a compact signed token for subject carrying roles.
func (i *Issuer) Issue(subject string, roles []string) (string, error) {
	if subject == "" {
		return "", errors.New("auth: token subject cannot be empty")
	}
	now := i.now()
	payload, err := json.Marshal(Claims{
		Subject:  subject,
		Roles:    roles,
		IssuedAt: now.Unix(),
		Expiry:   now.Add(i.ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("auth: failed to encode claims: %w", err)
	}
	obj, err := i.signer.Sign(payload)
	if err != nil {
		return "", fmt.Errorf("auth: failed to sign token: %w", err)
	}
	token, err := obj.CompactSerialize()
	if err != nil {
		return "", fmt.Errorf("auth: failed to serialize token: %w", err)
	}
	logger.Debug("token issued", zap.String("subject", subject), zap.Strings("roles", roles), zap.Duration("ttl", i.ttl))
	return token, nil
}

// Verifier checks console tokens.
type Verifier struct {
	secret []byte
	now    func() time.Time
}

// NewVerifier returns a Verifier for tokens signed with secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	return &Verifier{secret: secret, now: time.Now}, nil
}

// Verify checks the signature and expiry of token and returns its claims.
func (v *Verifier) Verify(token string) (*Claims, error) {
	obj, err := jose.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	payload, err := obj.Verify(v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return nil, fmt.Errorf("%w: malformed claims: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: no subject", ErrInvalidToken)
	}
	if claims.Expiry != 0 && v.now().Unix() >= claims.Expiry {
		return nil, fmt.Errorf("%w: expired", ErrInvalidToken)
	}
	return &claims, nil
}

// Authorize verifies token and checks it grants role.
func (v *Verifier) Authorize(token, role string) (*Claims, error) {
	claims, err := v.Verify(token)
	if err != nil {
		return nil, err
	}
	if !claims.HasRole(role) {
		return claims, fmt.Errorf("%w: %s", ErrForbidden, role)
	}
	return claims, nil
}

// TokenMiddleware requires a bearer token granting role.
func TokenMiddleware(v *Verifier, role string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			reqLogger := requestLogger(c).With(zap.String("required_role", role))

			header := c.Request().Header.Get(echo.HeaderAuthorization)
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				reqLogger.Debug("request without bearer token")
				return echo.NewHTTPError(http.StatusUnauthorized, "Missing bearer token")
			}

			claims, err := v.Authorize(strings.TrimSpace(token), role)
			switch {
			case errors.Is(err, ErrForbidden):
				reqLogger.Warn("token lacks required role", zap.String("subject", claims.Subject), zap.Strings("roles", claims.Roles))
				return echo.NewHTTPError(http.StatusForbidden, "Insufficient role")
			case err != nil:
				reqLogger.Warn("invalid token", zap.Error(err))
				return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token")
			}

			c.Set(claimsKey, claims)
			return next(c)
		}
	}
}

// ClaimsFrom returns the claims TokenMiddleware stored, or nil.
func ClaimsFrom(c echo.Context) *Claims {
	claims, _ := c.Get(claimsKey).(*Claims)
	return claims
}

func requestLogger(c echo.Context) *zap.Logger {
	if l, ok := c.Get("logger").(*zap.Logger); ok && l != nil {
		return l
	}
	return logger
}
