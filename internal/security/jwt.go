package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

// ErrInvalidToken covers every parse/verify failure: bad signature, expiry,
// malformed claims. Callers never learn which check failed.
var ErrInvalidToken = errors.New("invalid or expired token")

type AccessClaims struct {
	TenantID    string   `json:"tenant_id,omitempty"`
	BranchID    *uint    `json:"branch_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	jwt.RegisteredClaims
}

type RefreshClaims struct {
	TokenID string `json:"token_id,omitempty"`
	jwt.RegisteredClaims
}

// JWTManager mints and parses the access/refresh token pair. It is
// stateless; server-side refresh tracking lives in the token store.
type JWTManager struct {
	issuer        string
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewJWTManager(issuer, accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTManager {
	return &JWTManager{
		issuer:        issuer,
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
	}
}

func (m *JWTManager) RefreshTTL() time.Duration { return m.refreshTTL }

// MintAccessToken issues a short-lived token. Subject is the user's email;
// tenant, branch and the resolved permission list ride along as claims.
func (m *JWTManager) MintAccessToken(user *domain.User, permissions []string) (string, error) {
	now := time.Now()
	claims := AccessClaims{
		TenantID:    user.TenantID,
		BranchID:    user.BranchID,
		Permissions: permissions,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   user.Email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.accessSecret)
}

// MintRefreshToken issues a long-lived token with no token_id claim.
// Kept for the degraded path where the server-side record could not be
// persisted; such tokens refresh but cannot be individually revoked.
func (m *JWTManager) MintRefreshToken(email string) (string, error) {
	return m.MintRefreshTokenWithID(email, "")
}

// MintRefreshTokenWithID embeds tokenID so the matching store record can be
// located during rotation.
func (m *JWTManager) MintRefreshTokenWithID(email, tokenID string) (string, error) {
	now := time.Now()
	claims := RefreshClaims{
		TokenID: tokenID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.refreshTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.refreshSecret)
}

// ParseSubject returns the subject of a verified refresh token.
func (m *JWTManager) ParseSubject(raw string) (string, error) {
	claims, err := m.parseRefresh(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}

// ParseTokenID extracts the token_id claim from a refresh token. An empty
// result is not an error: tokens minted on the degraded path carry none.
func (m *JWTManager) ParseTokenID(raw string) (string, error) {
	claims, err := m.parseRefresh(raw)
	if err != nil {
		return "", ErrInvalidToken
	}
	return claims.TokenID, nil
}

// VerifyRefresh checks signature, expiry and that the token belongs to the
// expected subject.
func (m *JWTManager) VerifyRefresh(raw, expectedSubject string) error {
	claims, err := m.parseRefresh(raw)
	if err != nil {
		return ErrInvalidToken
	}
	if claims.Subject != expectedSubject {
		return ErrInvalidToken
	}
	return nil
}

// ParseAccess verifies an access token and returns its claims.
func (m *JWTManager) ParseAccess(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.accessSecret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (m *JWTManager) parseRefresh(raw string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing algorithm")
		}
		return m.refreshSecret, nil
	}, jwt.WithIssuer(m.issuer))
	if err != nil {
		return nil, err
	}
	if !tok.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}
