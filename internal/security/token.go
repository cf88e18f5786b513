package security

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caronline/vehiclesvc/internal/autherr"
)

// SessionClaims is the payload carried by an issued session token.
type SessionClaims struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	Email        string `json:"email"`
	Role         string `json:"role"`
	AuthProvider string `json:"authProvider"`
	// MFA is issued as a canonical boolean. Legacy tokens carried the string
	// "true"; MFACompleted accepts both until those tokens age out.
	MFA any `json:"mfa,omitempty"`

	jwt.RegisteredClaims
}

// MFACompleted reports whether the token carries a completed-MFA claim.
func (c *SessionClaims) MFACompleted() bool {
	switch v := c.MFA.(type) {
	case bool:
		return v
	case string:
		// Compatibility shim for tokens issued with a string-encoded claim.
		return v == "true"
	default:
		return false
	}
}

// TokenService mints and verifies session tokens. It holds only the signing
// secret and is safe for unsynchronized concurrent use.
type TokenService struct {
	secret []byte
	expiry time.Duration
	nowFn  func() time.Time
}

// NewTokenService constructs a TokenService with the given secret and expiry.
func NewTokenService(secret string, expiry time.Duration) (*TokenService, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("token service: empty signing secret")
	}
	if expiry <= 0 {
		expiry = time.Hour
	}
	return &TokenService{
		secret: []byte(secret),
		expiry: expiry,
		nowFn:  time.Now,
	}, nil
}

// Issue signs a session token embedding the configured expiry.
func (s *TokenService) Issue(claims SessionClaims) (string, error) {
	now := s.nowFn().UTC()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(s.expiry))
	if claims.MFA == nil {
		claims.MFA = false
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a session token. Expiry failures are reported
// as autherr.ErrTokenExpired; every other failure is autherr.ErrTokenInvalid.
func (s *TokenService) Verify(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.nowFn))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, autherr.ErrTokenExpired
		}
		return nil, autherr.ErrTokenInvalid
	}
	return claims, nil
}

// DecodeUnverified parses a token without checking its signature. Diagnostic
// use only; never authorize anything from its result.
func (s *TokenService) DecodeUnverified(tokenString string) *SessionClaims {
	claims := &SessionClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return nil
	}
	return claims
}
