package session

import (
	"context"
	"time"

	"buzzchat/internal/app/identity"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"

	"github.com/rs/zerolog"
)

// Watcher re-validates the signed-in session against the identity provider.
// It checks eagerly whenever a session appears and then on every tick. An
// auth failure signs the session out and is reported once through OnInvalid.
// Other failures are logged and retried on the next tick.
type Watcher struct {
	auth     *identity.Auth
	interval time.Duration
	log      zerolog.Logger

	// OnInvalid receives the error that ended the session.
	OnInvalid func(err error)
	// OnRefreshed receives every successfully re-validated credential.
	OnRefreshed func(cred identity.Credential)
}

// NewWatcher watches auth, re-validating every interval.
func NewWatcher(auth *identity.Auth, interval time.Duration) *Watcher {
	return &Watcher{
		auth:     auth,
		interval: interval,
		log:      logx.Component("session"),
	}
}

// Run blocks until ctx is done.
func (w *Watcher) Run(ctx context.Context) {
	appeared := make(chan struct{}, 1)
	unsubscribe := w.auth.OnSessionChange(func(cred *identity.Credential) {
		if cred == nil {
			return
		}
		select {
		case appeared <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-appeared:
			w.check(ctx, true)
		case <-ticker.C:
			w.check(ctx, false)
		}
	}
}

func (w *Watcher) check(ctx context.Context, force bool) {
	cur, ok := w.auth.Current()
	if !ok {
		return
	}

	cred, err := w.auth.Refresh(ctx, force)
	if err == nil {
		if w.OnRefreshed != nil {
			w.OnRefreshed(cred)
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	if errs.KindOf(err) == errs.KindAuth {
		w.log.Info().Str("user_id", cur.UserID).Err(err).Msg("Session no longer valid, signing out")
		w.auth.SignOut()
		if w.OnInvalid != nil {
			w.OnInvalid(err)
		}
		return
	}

	w.log.Warn().Str("user_id", cur.UserID).Err(err).Msg("Session check failed, will retry")
}
