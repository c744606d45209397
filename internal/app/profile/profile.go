/*
Package profile reads and edits the current user's display attributes.

Every rule is checked before anything is written: a changed display name must
respect the rename cooldown, the length bounds and uniqueness, colors must not
be pure black or white, and badge text must fit. Passing edits are stored with
a single document update. The checks run against the store without locking,
so two users can still race for the same name.
*/
package profile

import (
	"context"
	"errors"
	"strings"
	"time"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/randx"

	"github.com/rs/zerolog"
)

// NameCooldownDays is how many whole days must pass between renames.
const NameCooldownDays = 6

// Update is a full profile edit.
type Update struct {
	DisplayName string `json:"displayName"`
	NameColor   string `json:"nameColor"`
	TitleColor  string `json:"titleColor"`
	BadgeText   string `json:"badgeText"`
	BadgeColor  string `json:"badgeColor"`
}

// Manager edits the profile of one session.
type Manager struct {
	store docstore.Store
	sess  session.Session
	now   func() time.Time
	log   zerolog.Logger
}

// NewManager returns a Manager for sess. now defaults to time.Now.
func NewManager(store docstore.Store, sess session.Session, now func() time.Time) *Manager {
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store: store,
		sess:  sess,
		now:   now,
		log:   logx.ForUser("profile", sess.UserID),
	}
}

// Register creates the user document for a new account with default colors.
// A blank name gets a generated one.
func Register(ctx context.Context, store docstore.Store, id, email, displayName string, role user.Role) (user.User, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		generated, err := randx.UserNickname()
		if err != nil {
			return user.User{}, errs.NewError(errs.ErrUnknown, err)
		}
		displayName = generated
	}
	if !user.ValidNameLength(displayName) {
		return user.User{}, errs.NewError(errs.ErrNameLength)
	}

	taken, err := nameHeldByOther(ctx, store, displayName, id)
	if err != nil {
		return user.User{}, err
	}
	if taken {
		return user.User{}, errs.NewError(errs.ErrNameTaken)
	}

	u := user.User{
		ID:          id,
		Email:       email,
		DisplayName: displayName,
		NameColor:   user.DefaultColor,
		TitleColor:  user.DefaultColor,
		BadgeColor:  user.DefaultColor,
		Role:        role,
	}
	fields, err := docstore.ToFields(u)
	if err != nil {
		return user.User{}, errs.NewError(errs.ErrUnknown, err)
	}
	fields["createdAt"] = docstore.ServerTimestamp

	if err := store.SetDoc(ctx, user.Collection, id, fields); err != nil {
		return user.User{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	return u, nil
}

// Current reads the session user's document.
func (m *Manager) Current(ctx context.Context) (user.User, error) {
	return load(ctx, m.store, m.sess.UserID)
}

// UpdateProfile validates u against the stored profile and writes it.
// Colors and badge text are checked before the store is read.
func (m *Manager) UpdateProfile(ctx context.Context, u Update) (user.User, error) {
	for _, c := range []string{u.NameColor, u.TitleColor, u.BadgeColor} {
		if !user.IsValidColor(c) {
			return user.User{}, errs.NewError(errs.ErrColorInvalid)
		}
	}
	if !user.ValidBadgeLength(u.BadgeText) {
		return user.User{}, errs.NewError(errs.ErrBadgeTooLong)
	}

	current, err := m.Current(ctx)
	if err != nil {
		return user.User{}, err
	}

	u.DisplayName = strings.TrimSpace(u.DisplayName)
	nameChanged := u.DisplayName != current.DisplayName
	now := m.now()

	if nameChanged {
		if last, ok := current.LastNameChange(); ok {
			days := int(now.Sub(last) / (24 * time.Hour))
			if days < NameCooldownDays {
				return user.User{}, errs.NewError(errs.ErrNameCooldown, NameCooldownDays-days)
			}
		}
		if !user.ValidNameLength(u.DisplayName) {
			return user.User{}, errs.NewError(errs.ErrNameLength)
		}
		taken, err := nameHeldByOther(ctx, m.store, u.DisplayName, m.sess.UserID)
		if err != nil {
			return user.User{}, err
		}
		if taken {
			return user.User{}, errs.NewError(errs.ErrNameTaken)
		}
	}

	fields := docstore.Fields{
		"displayName": u.DisplayName,
		"nameColor":   u.NameColor,
		"titleColor":  u.TitleColor,
		"badgeText":   u.BadgeText,
		"badgeColor":  u.BadgeColor,
	}
	if nameChanged {
		fields["lastNameChangeAt"] = docstore.FormatTimestamp(now)
	}

	if err := m.store.UpdateDoc(ctx, user.Collection, m.sess.UserID, fields); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return user.User{}, errs.NewError(errs.ErrUserNotFound)
		}
		return user.User{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	if nameChanged {
		m.log.Info().Str("old_name", current.DisplayName).Str("new_name", u.DisplayName).Msg("Display name changed")
	}

	current.DisplayName = u.DisplayName
	current.NameColor = u.NameColor
	current.TitleColor = u.TitleColor
	current.BadgeText = u.BadgeText
	current.BadgeColor = u.BadgeColor
	if nameChanged {
		stamp := fields["lastNameChangeAt"].(string)
		current.LastNameChangeAt = &stamp
	}
	return current, nil
}

// SetNotificationToken stores the push endpoint of the session user.
func (m *Manager) SetNotificationToken(ctx context.Context, token string) error {
	err := m.store.UpdateDoc(ctx, user.Collection, m.sess.UserID, docstore.Fields{"notificationToken": token})
	if errors.Is(err, docstore.ErrNotFound) {
		return errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	return nil
}

func load(ctx context.Context, store docstore.Store, id string) (user.User, error) {
	doc, err := store.GetDoc(ctx, user.Collection, id)
	if errors.Is(err, docstore.ErrNotFound) {
		return user.User{}, errs.NewError(errs.ErrUserNotFound)
	}
	if err != nil {
		return user.User{}, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	var u user.User
	if err := doc.Decode(&u); err != nil {
		return user.User{}, errs.NewError(errs.ErrUnknown, err)
	}
	return u, nil
}

func nameHeldByOther(ctx context.Context, store docstore.Store, name, selfID string) (bool, error) {
	docs, err := store.GetDocsWhere(ctx, user.Collection, "displayName", name)
	if err != nil {
		return false, errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	for _, d := range docs {
		if d.ID != selfID {
			return true, nil
		}
	}
	return false, nil
}
