package security

import (
	"context"
	"errors"

	"golang.org/x/crypto/bcrypt"

	"github.com/mindgrove/tenant-auth-service/internal/domain"
)

// ErrBadCredentials is deliberately the only failure BcryptVerifier ever
// returns for a bad email or a bad password, so callers cannot tell which
// factor was wrong.
var ErrBadCredentials = errors.New("invalid email or password")

type identityLookup interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
}

// BcryptVerifier authenticates email/password pairs against stored bcrypt
// hashes. It satisfies service.CredentialVerifier.
type BcryptVerifier struct {
	users identityLookup
}

func NewBcryptVerifier(users identityLookup) *BcryptVerifier {
	return &BcryptVerifier{users: users}
}

func (v *BcryptVerifier) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	user, err := v.users.FindByEmail(ctx, email)
	if err != nil {
		// Burn a comparison anyway to keep timing roughly uniform.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"), []byte(password))
		return nil, ErrBadCredentials
	}
	if !user.IsActive || user.IsDeleted {
		return nil, ErrBadCredentials
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}
	return user, nil
}

// HashPassword is used by provisioning code and test fixtures.
func HashPassword(password string, cost int) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}
