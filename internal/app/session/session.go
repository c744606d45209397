// Package session holds the signed-in session value passed to the chat and
// profile components, and the watcher that keeps it valid.
package session

import (
	"context"
	"errors"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/errs"
)

// Session is the caller identity threaded into every operation. The bearer
// token stays with identity.Auth, which refreshes it.
type Session struct {
	UserID string
	Email  string
	Role   user.Role
}

// IsModerator reports whether the session may delete any message.
func (s Session) IsModerator() bool {
	return s.Role == user.RoleModerator
}

// Start resolves the role of cred's user once, at session start.
func Start(ctx context.Context, store docstore.Store, cred identity.Credential) (Session, error) {
	doc, err := store.GetDoc(ctx, user.Collection, cred.UserID)
	if errors.Is(err, docstore.ErrNotFound) {
		return Session{}, errs.NewError(errs.ErrAccountNotFound)
	}
	if err != nil {
		return Session{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	var u user.User
	if err := doc.Decode(&u); err != nil {
		return Session{}, errs.NewError(errs.ErrUnknown, err)
	}

	role := u.Role
	if role == "" {
		role = user.RoleMember
	}
	return Session{UserID: cred.UserID, Email: cred.Email, Role: role}, nil
}
