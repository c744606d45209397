package identity

import (
	"context"
	"sort"
	"sync"

	"buzzchat/internal/pkg/errs"
)

// SessionListener receives the signed-in credential, or nil after sign-out.
type SessionListener func(cred *Credential)

// Auth tracks the credential of one client session.
type Auth struct {
	provider Provider

	mu        sync.Mutex
	current   *Credential
	listeners map[int]SessionListener
	nextID    int

	// dispatch serialises listener calls so they observe changes in order.
	dispatch sync.Mutex
}

// NewAuth returns a signed-out handle backed by provider.
func NewAuth(provider Provider) *Auth {
	return &Auth{
		provider:  provider,
		listeners: make(map[int]SessionListener),
	}
}

// SignUp creates an account and signs it in.
func (a *Auth) SignUp(ctx context.Context, email, password string) (Credential, error) {
	cred, err := a.provider.SignUp(ctx, email, password)
	if err != nil {
		return Credential{}, err
	}
	a.set(&cred)
	return cred, nil
}

// SignIn authenticates and signs in.
func (a *Auth) SignIn(ctx context.Context, email, password string) (Credential, error) {
	cred, err := a.provider.SignIn(ctx, email, password)
	if err != nil {
		return Credential{}, err
	}
	a.set(&cred)
	return cred, nil
}

// Restore adopts a credential obtained elsewhere, such as a token presented on connect.
func (a *Auth) Restore(cred Credential) {
	a.set(&cred)
}

// SignOut drops the local credential.
func (a *Auth) SignOut() {
	a.set(nil)
}

// Current returns the signed-in credential.
func (a *Auth) Current() (Credential, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil {
		return Credential{}, false
	}
	return *a.current, true
}

// Refresh re-validates the current credential. A reissued token replaces the
// local one without notifying listeners, since the identity did not change.
func (a *Auth) Refresh(ctx context.Context, force bool) (Credential, error) {
	cur, ok := a.Current()
	if !ok {
		return Credential{}, errs.NewError(errs.ErrNotSignedIn)
	}

	cred, err := a.provider.RefreshToken(ctx, cur.Token, force)
	if err != nil {
		return Credential{}, err
	}

	a.mu.Lock()
	if a.current != nil && a.current.UserID == cred.UserID {
		c := cred
		a.current = &c
	}
	a.mu.Unlock()

	return cred, nil
}

// OnSessionChange registers fn. fn is called right away with the current
// state and again whenever the signed-in identity changes. Listeners run
// synchronously and must not call back into a.
func (a *Auth) OnSessionChange(fn SessionListener) (unsubscribe func()) {
	a.dispatch.Lock()
	a.mu.Lock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = fn
	var cur *Credential
	if a.current != nil {
		c := *a.current
		cur = &c
	}
	a.mu.Unlock()

	fn(cur)
	a.dispatch.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.listeners, id)
		a.mu.Unlock()
	}
}

func (a *Auth) set(cred *Credential) {
	a.dispatch.Lock()
	defer a.dispatch.Unlock()

	a.mu.Lock()
	changed := identityOf(a.current) != identityOf(cred)
	a.current = cred
	if !changed {
		a.mu.Unlock()
		return
	}
	ids := make([]int, 0, len(a.listeners))
	for id := range a.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]SessionListener, 0, len(ids))
	for _, id := range ids {
		fns = append(fns, a.listeners[id])
	}
	a.mu.Unlock()

	for _, fn := range fns {
		if cred == nil {
			fn(nil)
			continue
		}
		c := *cred
		fn(&c)
	}
}

func identityOf(c *Credential) string {
	if c == nil {
		return ""
	}
	return c.UserID
}
