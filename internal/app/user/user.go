/*
Package user defines the participant document stored in the users collection
and the display rules shared by registration and profile edits.
*/
package user

import (
	"strings"
	"time"
	"unicode/utf8"

	"buzzchat/internal/app/docstore"
)

// Collection is the document store collection holding User documents.
const Collection = "users"

const (
	// DefaultColor is assigned to every color attribute at registration.
	DefaultColor = "#646cff"

	MinNameLength  = 3
	MaxNameLength  = 15
	MaxBadgeLength = 10
)

// Role decides which messages a user may delete.
type Role string

const (
	RoleMember    Role = "member"
	RoleModerator Role = "moderator"
)

// Badge is the short label rendered next to a display name.
type Badge struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// User is one registered participant. The document id equals the account id.
type User struct {
	ID                string  `json:"id"`
	Email             string  `json:"email"`
	DisplayName       string  `json:"displayName"`
	NameColor         string  `json:"nameColor"`
	TitleColor        string  `json:"titleColor"`
	BadgeText         string  `json:"badgeText"`
	BadgeColor        string  `json:"badgeColor"`
	LastNameChangeAt  *string `json:"lastNameChangeAt,omitempty"`
	Online            bool    `json:"online"`
	NotificationToken string  `json:"notificationToken,omitempty"`
	Role              Role    `json:"role"`
	CreatedAt         string  `json:"createdAt,omitempty"`
}

// IsModerator reports whether u may delete any message.
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator
}

// LastNameChange returns when the display name last changed. ok is false
// when it never changed or the stored value is unreadable.
func (u *User) LastNameChange() (t time.Time, ok bool) {
	if u.LastNameChangeAt == nil || *u.LastNameChangeAt == "" {
		return time.Time{}, false
	}
	t, err := docstore.ParseTimestamp(*u.LastNameChangeAt)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// Badge returns the badge, or nil when the user has none.
func (u *User) Badge() *Badge {
	if u.BadgeText == "" {
		return nil
	}
	return &Badge{Text: u.BadgeText, Color: u.BadgeColor}
}

// RoleFor resolves the role of an account from the configured moderator email.
func RoleFor(email, moderatorEmail string) Role {
	if moderatorEmail != "" && strings.EqualFold(strings.TrimSpace(email), moderatorEmail) {
		return RoleModerator
	}
	return RoleMember
}

var forbiddenColors = map[string]struct{}{
	"#000000": {},
	"#000":    {},
	"#ffffff": {},
	"#fff":    {},
}

// IsValidColor rejects pure black and pure white in either hex form.
func IsValidColor(c string) bool {
	_, bad := forbiddenColors[strings.ToLower(strings.TrimSpace(c))]
	return !bad
}

// ValidNameLength reports whether name has between MinNameLength and MaxNameLength characters.
func ValidNameLength(name string) bool {
	n := utf8.RuneCountInString(name)
	return n >= MinNameLength && n <= MaxNameLength
}

// ValidBadgeLength reports whether text fits the badge.
func ValidBadgeLength(text string) bool {
	return utf8.RuneCountInString(text) <= MaxBadgeLength
}
