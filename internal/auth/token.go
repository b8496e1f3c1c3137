// Package auth verifies the bearer tokens issued to customers and admins.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/smartapp/orderpay/internal/models"
)

const (
	TokenTypeUser  = "user"
	TokenTypeAdmin = "admin"
)

var (
	ErrMissingToken = errors.New("auth: bearer token missing")
	ErrInvalidToken = errors.New("auth: bearer token invalid")
)

// Claims is the token body shared with the customer app and admin console.
type Claims struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	Role  string `json:"role,omitempty"`
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the authenticated caller.
type Identity struct {
	ID    string
	Role  string
	Email string
}

func (i Identity) Actor() models.Actor {
	return models.Actor{ID: i.ID, Role: i.Role}
}

func (i Identity) IsAdmin() bool {
	return i.Role != "" && i.Role != models.RoleCustomer
}

type TokenVerifier struct {
	secret []byte
	now    func() time.Time
}

func NewTokenVerifier(secret string) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), now: time.Now}
}

// Verify checks an HS256 token and maps it to an Identity. User tokens always
// carry the customer role; admin tokens must name one.
func (v *TokenVerifier) Verify(raw string) (Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Identity{}, ErrMissingToken
	}
	if len(v.secret) == 0 {
		return Identity{}, fmt.Errorf("%w: signing secret is not configured", ErrInvalidToken)
	}

	claims := &Claims{}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(v.now),
	)
	if _, err := parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}); err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" {
		return Identity{}, fmt.Errorf("%w: subject id missing", ErrInvalidToken)
	}

	identity := Identity{ID: claims.ID, Email: claims.Email}
	switch claims.Type {
	case TokenTypeUser, "":
		identity.Role = models.RoleCustomer
	case TokenTypeAdmin:
		switch claims.Role {
		case models.RoleSuperAdmin, models.RoleSupportAdmin, models.RoleKitchenAdmin:
			identity.Role = claims.Role
		default:
			return Identity{}, fmt.Errorf("%w: unknown admin role %q", ErrInvalidToken, claims.Role)
		}
	default:
		return Identity{}, fmt.Errorf("%w: unknown token type %q", ErrInvalidToken, claims.Type)
	}
	return identity, nil
}

// Issue signs a token for identity. Used by tooling and tests.
func (v *TokenVerifier) Issue(identity Identity, ttl time.Duration) (string, error) {
	tokenType := TokenTypeUser
	role := ""
	if identity.IsAdmin() {
		tokenType = TokenTypeAdmin
		role = identity.Role
	}
	now := v.now()
	claims := Claims{
		ID:    identity.ID,
		Type:  tokenType,
		Role:  role,
		Email: identity.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type identityKey struct{}

func WithIdentity(ctx context.Context, identity Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(Identity)
	return identity, ok
}
