/*
Package identity authenticates accounts and issues session credentials.

Service is the provider side: it keeps accounts in the document store with
bcrypt password hashes and issues HS256 tokens. Auth is the per-session handle
that tracks the signed-in credential and tells listeners when the signed-in
identity changes.
*/
package identity

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/pkg/auth/jwt"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"
)

// Collection holds account documents. Account ids are shared with user documents.
const Collection = "accounts"

const (
	minPasswordLength = 6
	maxPasswordLength = 50

	// DefaultRefreshWindow is how close to expiry a non-forced refresh reissues a token.
	DefaultRefreshWindow = 10 * time.Minute
)

// Credential is a signed-in session as issued by a Provider.
type Credential struct {
	UserID    string    `json:"userId"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Provider is the identity backend contract.
type Provider interface {
	SignUp(ctx context.Context, email, password string) (Credential, error)
	SignIn(ctx context.Context, email, password string) (Credential, error)
	// RefreshToken re-validates token against the backend. It fails with an
	// auth error when the token expired or the account no longer exists.
	RefreshToken(ctx context.Context, token string, force bool) (Credential, error)
}

type account struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"passwordHash"`
	CreatedAt    string `json:"createdAt,omitempty"`
}

// Service implements Provider over the document store.
type Service struct {
	store         docstore.Store
	secret        string
	ttl           time.Duration
	refreshWindow time.Duration
	hashCost      int
	validate      *validator.Validate
	log           zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithHashCost overrides the bcrypt cost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// WithRefreshWindow overrides DefaultRefreshWindow.
func WithRefreshWindow(d time.Duration) Option {
	return func(s *Service) { s.refreshWindow = d }
}

// NewService returns a provider issuing tokens valid for ttl.
func NewService(store docstore.Store, secret string, ttl time.Duration, opts ...Option) *Service {
	s := &Service{
		store:         store,
		secret:        secret,
		ttl:           ttl,
		refreshWindow: DefaultRefreshWindow,
		hashCost:      bcrypt.DefaultCost,
		validate:      validator.New(),
		log:           logx.Component("identity"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) SignUp(ctx context.Context, email, password string) (Credential, error) {
	email = normalizeEmail(email)
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return Credential{}, errs.NewError(errs.ErrInvalidEmail)
	}
	if n := utf8.RuneCountInString(password); n < minPasswordLength || n > maxPasswordLength {
		return Credential{}, errs.NewError(errs.ErrInvalidPassword)
	}

	existing, err := s.store.GetDocsWhere(ctx, Collection, "email", email)
	if err != nil {
		return Credential{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	if len(existing) > 0 {
		return Credential{}, errs.NewError(errs.ErrUserAlreadyExists)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return Credential{}, errs.NewError(errs.ErrUnknown, err)
	}

	id := uuid.NewString()
	err = s.store.SetDoc(ctx, Collection, id, docstore.Fields{
		"email":        email,
		"passwordHash": string(hash),
		"createdAt":    docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		s.log.Warn().Str("email", logx.MaskEmail(email)).Msg("Registration conflict: email already exists")
		return Credential{}, errs.NewError(errs.ErrUserAlreadyExists)
	}
	if err != nil {
		return Credential{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	s.log.Info().Str("user_id", id).Msg("Account created")
	return s.issue(id, email)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (Credential, error) {
	email = normalizeEmail(email)

	docs, err := s.store.GetDocsWhere(ctx, Collection, "email", email)
	if err != nil {
		return Credential{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	if len(docs) == 0 {
		s.log.Warn().Str("email", logx.MaskEmail(email)).Msg("Login: unknown email")
		return Credential{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	var acc account
	if err := docs[0].Decode(&acc); err != nil {
		return Credential{}, errs.NewError(errs.ErrUnknown, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		s.log.Warn().Str("user_id", acc.ID).Msg("Login: password mismatch")
		return Credential{}, errs.NewError(errs.ErrInvalidCredentials)
	}

	return s.issue(acc.ID, acc.Email)
}

func (s *Service) RefreshToken(ctx context.Context, token string, force bool) (Credential, error) {
	payload, err := jwt.ParseToken(token, s.secret)
	if err != nil {
		if jwt.IsExpired(err) {
			return Credential{}, errs.NewError(errs.ErrSessionExpired)
		}
		return Credential{}, errs.NewError(errs.ErrUnauthorized)
	}

	doc, err := s.store.GetDoc(ctx, Collection, payload.ID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Credential{}, errs.NewError(errs.ErrAccountNotFound)
	}
	if err != nil {
		return Credential{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	var acc account
	if err := doc.Decode(&acc); err != nil {
		return Credential{}, errs.NewError(errs.ErrUnknown, err)
	}

	expiresAt := payload.ExpiresAtTime()
	if force || time.Until(expiresAt) < s.refreshWindow {
		return s.issue(acc.ID, acc.Email)
	}
	return Credential{UserID: acc.ID, Email: acc.Email, Token: token, ExpiresAt: expiresAt}, nil
}

// Verify parses token without touching the store.
func (s *Service) Verify(token string) (Credential, error) {
	payload, err := jwt.ParseToken(token, s.secret)
	if err != nil {
		if jwt.IsExpired(err) {
			return Credential{}, errs.NewError(errs.ErrSessionExpired)
		}
		return Credential{}, errs.NewError(errs.ErrUnauthorized)
	}
	return Credential{UserID: payload.ID, Email: payload.Email, Token: token, ExpiresAt: payload.ExpiresAtTime()}, nil
}

// DeleteAccount removes an account. Sessions it issued fail their next refresh.
func (s *Service) DeleteAccount(ctx context.Context, id string) error {
	err := s.store.DeleteDoc(ctx, Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return errs.NewError(errs.ErrAccountNotFound)
	}
	if err != nil {
		return errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	s.log.Info().Str("user_id", id).Msg("Account deleted")
	return nil
}

func (s *Service) issue(id, email string) (Credential, error) {
	token, expiresAt, err := jwt.GenerateToken(&jwt.Payload{ID: id, Email: email}, s.secret, s.ttl)
	if err != nil {
		return Credential{}, errs.NewError(errs.ErrUnknown, err)
	}
	return Credential{UserID: id, Email: email, Token: token, ExpiresAt: expiresAt}, nil
}
