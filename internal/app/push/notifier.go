package push

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"

	"github.com/rs/zerolog"
)

const (
	maxBodyRunes   = 100
	publishTimeout = 10 * time.Second
)

// Presence is the view of connected users the notifier needs.
type Presence interface {
	IsOnline(userID string) bool
	OnlineUsers() []string
	Notify(userID string, env chat.Envelope) int
}

// Notifier watches the message stream and notifies everyone but the author
// of each new message.
type Notifier struct {
	store    docstore.Store
	presence Presence
	gateway  Gateway
	log      zerolog.Logger
}

// NewNotifier returns a Notifier. Call Run to start it.
func NewNotifier(store docstore.Store, presence Presence, gateway Gateway) *Notifier {
	return &Notifier{
		store:    store,
		presence: presence,
		gateway:  gateway,
		log:      logx.Component("notifier"),
	}
}

// Run blocks until ctx is done. Messages present in the first snapshot are
// treated as already seen.
func (n *Notifier) Run(ctx context.Context) error {
	h, err := n.store.QueryOrdered(ctx, chat.MessagesCollection, chat.OrderField, docstore.Asc)
	if err != nil {
		return errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	defer h.Close()

	var seen map[string]struct{}
	for docs := range h.Snapshots() {
		msgs, _ := chat.DecodeMessages(docs)

		current := make(map[string]struct{}, len(msgs))
		var fresh []chat.Message
		for _, m := range msgs {
			current[m.ID] = struct{}{}
			if seen == nil {
				continue
			}
			if _, ok := seen[m.ID]; !ok {
				fresh = append(fresh, m)
			}
		}
		seen = current

		for _, m := range fresh {
			n.dispatch(ctx, m)
		}
	}
	return ctx.Err()
}

func (n *Notifier) dispatch(ctx context.Context, m chat.Message) {
	note := notificationFor(m)

	env, err := chat.NewEnvelope(chat.TypeNotification, chat.NotificationPayload{
		MessageID: m.ID,
		Title:     note.Title,
		Body:      note.Body,
	})
	if err != nil {
		n.log.Error().Err(err).Msg("Failed to build NOTIFICATION message.")
		return
	}
	for _, id := range n.presence.OnlineUsers() {
		if id != m.AuthorID {
			n.presence.Notify(id, env)
		}
	}

	offline, err := n.store.GetDocsWhere(ctx, user.Collection, "online", false)
	if err != nil {
		n.log.Warn().Err(err).Str("message_id", m.ID).Msg("Failed to list offline users")
		return
	}
	for _, d := range offline {
		var u user.User
		if err := d.Decode(&u); err != nil {
			continue
		}
		if u.ID == m.AuthorID || u.NotificationToken == "" || n.presence.IsOnline(u.ID) {
			continue
		}
		n.publish(ctx, u, note)
	}
}

func (n *Notifier) publish(ctx context.Context, u user.User, note Notification) {
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err := n.gateway.Publish(pctx, u.NotificationToken, note)
	switch {
	case err == nil:
	case errors.Is(err, ErrEndpointDisabled):
		n.log.Info().Str("user_id", u.ID).Msg("Push endpoint disabled, forgetting it")
		if err := n.store.UpdateDoc(ctx, user.Collection, u.ID, docstore.Fields{"notificationToken": ""}); err != nil {
			n.log.Warn().Err(err).Str("user_id", u.ID).Msg("Failed to clear push endpoint")
		}
	default:
		n.log.Warn().Err(errs.Wrap(errs.ErrPushFailed, err)).Str("user_id", u.ID).Msg("Push delivery failed")
	}
}

func notificationFor(m chat.Message) Notification {
	body := m.Text
	if body == "" && m.ImageURL != "" {
		body = "sent an image"
	}
	if utf8.RuneCountInString(body) > maxBodyRunes {
		body = string([]rune(body)[:maxBodyRunes]) + "…"
	}
	return Notification{
		Title: m.AuthorDisplayName,
		Body:  body,
		Data:  map[string]string{"messageId": m.ID},
	}
}
