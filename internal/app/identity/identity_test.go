package identity

import (
	"context"
	"testing"
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const testSecret = "identity-test-secret"

func newService(t *testing.T, opts ...Option) (*Service, *docstore.MemoryStore) {
	t.Helper()
	store := docstore.NewMemoryStore(docstore.WithUniqueField(Collection, "email"))
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	return NewService(store, testSecret, time.Hour, opts...), store
}

func TestSignUpAndSignIn(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	cred, err := s.SignUp(ctx, " Alice@Example.com ", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.UserID)
	assert.Equal(t, "alice@example.com", cred.Email)
	assert.NotEmpty(t, cred.Token)

	again, err := s.SignIn(ctx, "alice@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, again.UserID)

	_, err = s.SignIn(ctx, "alice@example.com", "wrong-pass")
	assert.True(t, errs.HasCode(err, errs.ErrInvalidCredentials))

	_, err = s.SignIn(ctx, "nobody@example.com", "secret1")
	assert.True(t, errs.HasCode(err, errs.ErrInvalidCredentials))
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
}

func TestSignUpValidation(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	_, err := s.SignUp(ctx, "taken@example.com", "secret1")
	require.NoError(t, err)

	tests := []struct {
		name     string
		email    string
		password string
		wantCode int
	}{
		{"bad email", "not-an-email", "secret1", errs.ErrInvalidEmail},
		{"short password", "a@example.com", "12345", errs.ErrInvalidPassword},
		{"long password", "a@example.com", string(make([]byte, 51)), errs.ErrInvalidPassword},
		{"duplicate", "TAKEN@example.com", "secret1", errs.ErrUserAlreadyExists},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.SignUp(ctx, tt.email, tt.password)
			assert.True(t, errs.HasCode(err, tt.wantCode), "got %v", err)
		})
	}
}

func TestRefreshToken(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	cred, err := s.SignUp(ctx, "bob@example.com", "secret1")
	require.NoError(t, err)

	same, err := s.RefreshToken(ctx, cred.Token, false)
	require.NoError(t, err)
	assert.Equal(t, cred.Token, same.Token, "far from expiry keeps the token")

	forced, err := s.RefreshToken(ctx, cred.Token, true)
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, forced.UserID)
	assert.False(t, forced.ExpiresAt.Before(cred.ExpiresAt))

	_, err = s.RefreshToken(ctx, "garbage", false)
	assert.True(t, errs.HasCode(err, errs.ErrUnauthorized))
}

func TestRefreshTokenInsideWindowReissues(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t, WithRefreshWindow(2*time.Hour))

	cred, err := s.SignUp(ctx, "carol@example.com", "secret1")
	require.NoError(t, err)

	got, err := s.RefreshToken(ctx, cred.Token, false)
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, got.UserID)
}

func TestRefreshTokenExpired(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	s := NewService(store, testSecret, -time.Minute, WithHashCost(bcrypt.MinCost))

	cred, err := s.SignUp(ctx, "dave@example.com", "secret1")
	require.NoError(t, err)

	_, err = s.RefreshToken(ctx, cred.Token, true)
	assert.True(t, errs.HasCode(err, errs.ErrSessionExpired))
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))

	_, err = s.Verify(cred.Token)
	assert.True(t, errs.HasCode(err, errs.ErrSessionExpired))
}

func TestRefreshTokenAccountRemoved(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	cred, err := s.SignUp(ctx, "erin@example.com", "secret1")
	require.NoError(t, err)
	require.NoError(t, s.DeleteAccount(ctx, cred.UserID))

	_, err = s.RefreshToken(ctx, cred.Token, true)
	assert.True(t, errs.HasCode(err, errs.ErrAccountNotFound))
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))

	assert.True(t, errs.HasCode(s.DeleteAccount(ctx, cred.UserID), errs.ErrAccountNotFound))
}

func TestVerify(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	cred, err := s.SignUp(ctx, "frank@example.com", "secret1")
	require.NoError(t, err)

	got, err := s.Verify(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, cred.UserID, got.UserID)
	assert.Equal(t, "frank@example.com", got.Email)

	_, err = s.Verify("garbage")
	assert.True(t, errs.HasCode(err, errs.ErrUnauthorized))
}
