package handler

import (
	"net/http"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/push"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/storage"
	"buzzchat/internal/configs"
	"buzzchat/internal/pkg/auth/jwt"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/limiter"
	"buzzchat/internal/pkg/pow"
)

// AppDeps carries the shared services every handler reads from.
type AppDeps struct {
	Config   *configs.AppConfig
	Store    docstore.Store
	Identity *identity.Service
	Hub      *chat.Hub
	Storage  storage.Service
	Push     push.Gateway
	PoW      *pow.PoWManager

	// SendLimiter throttles SEND commands per user across all of their sockets.
	SendLimiter *limiter.KeyedLimiter
}

// credential turns the request's verified token payload into a Credential.
func credential(r *http.Request) (identity.Credential, *errs.CustomError) {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil {
		return identity.Credential{}, errs.NewError(errs.ErrUnauthorized)
	}
	return identity.Credential{
		UserID:    payload.ID,
		Email:     payload.Email,
		Token:     jwt.TokenFromRequest(r),
		ExpiresAt: payload.ExpiresAtTime(),
	}, nil
}

// session resolves the caller's session, failing when the account behind
// the token is gone.
func (d *AppDeps) session(r *http.Request) (session.Session, error) {
	cred, cerr := credential(r)
	if cerr != nil {
		return session.Session{}, cerr
	}
	return session.Start(r.Context(), d.Store, cred)
}

func (d *AppDeps) clientDeps() chat.Deps {
	return chat.Deps{
		Store:                d.Store,
		Hub:                  d.Hub,
		SendLimiter:          d.SendLimiter,
		SessionCheckInterval: d.Config.SessionCheckInterval,
	}
}
