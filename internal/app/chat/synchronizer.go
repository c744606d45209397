package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"

	"github.com/rs/zerolog"
)

// Synchronizer mirrors the message stream for one session and performs the
// session's sends and deletes. The mirror is only ever replaced by a store
// snapshot, so sends and deletes show up once the store confirms them.
type Synchronizer struct {
	store docstore.Store
	sess  session.Session
	log   zerolog.Logger

	mu       sync.RWMutex
	messages []Message
}

// NewSynchronizer returns a Synchronizer acting as sess.
func NewSynchronizer(store docstore.Store, sess session.Session) *Synchronizer {
	return &Synchronizer{
		store:    store,
		sess:     sess,
		log:      logx.ForUser("chat", sess.UserID),
		messages: []Message{},
	}
}

// Subscribe opens a live query on the message stream ordered by creation
// time. Each snapshot replaces the mirror and is then offered on the returned
// channel, which keeps only the newest undelivered snapshot. The channel
// closes when ctx is done.
func (s *Synchronizer) Subscribe(ctx context.Context) (<-chan []Message, error) {
	h, err := s.store.QueryOrdered(ctx, MessagesCollection, OrderField, docstore.Asc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStoreUnavailable, err)
	}

	out := make(chan []Message, 1)
	go func() {
		defer close(out)
		defer h.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case docs, ok := <-h.Snapshots():
				if !ok {
					return
				}
				msgs, skipped := DecodeMessages(docs)
				if skipped > 0 {
					s.log.Warn().Int("skipped", skipped).Msg("Dropped undecodable messages from snapshot")
				}

				s.mu.Lock()
				s.messages = msgs
				s.mu.Unlock()

				offerMessages(out, msgs)
			}
		}
	}()
	return out, nil
}

// Messages returns a copy of the mirrored list, oldest first.
func (s *Synchronizer) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.messages...)
}

// Find looks a message up in the mirror.
func (s *Synchronizer) Find(id string) (Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// Send stores a new message authored by the session user and returns its
// id. Text is trimmed; a message needs text or an image.
func (s *Synchronizer) Send(ctx context.Context, text, imageURL string) (string, error) {
	text = strings.TrimSpace(text)
	imageURL = strings.TrimSpace(imageURL)

	if text == "" && imageURL == "" {
		return "", errs.NewError(errs.ErrMessageEmpty)
	}
	if len(text) > MaxContentBytes {
		return "", errs.NewError(errs.ErrMessageContentTooLong)
	}
	if imageURL != "" && !ValidImageURL(imageURL) {
		return "", errs.NewError(errs.ErrImageURLInvalid)
	}

	author, err := s.author(ctx)
	if err != nil {
		return "", err
	}

	fields := docstore.Fields{
		"authorId":          s.sess.UserID,
		"authorEmail":       s.sess.Email,
		"authorDisplayName": author.DisplayName,
		"authorNameColor":   author.NameColor,
		"text":              text,
		"createdAt":         docstore.ServerTimestamp,
	}
	if badge := author.Badge(); badge != nil {
		fields["authorBadge"] = badge
	}
	if imageURL != "" {
		fields["imageUrl"] = imageURL
	}

	id, err := s.store.CreateDoc(ctx, MessagesCollection, fields)
	if err != nil {
		return "", errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	s.log.Debug().Str("message_id", id).Bool("has_image", imageURL != "").Msg("Message sent")
	return id, nil
}

// CanDelete reports whether the session may delete a message by authorID.
func (s *Synchronizer) CanDelete(authorID string) bool {
	return s.sess.UserID == authorID || s.sess.IsModerator()
}

// Remove deletes a message. Only its author or a moderator may do so; a
// refused delete never reaches the store.
func (s *Synchronizer) Remove(ctx context.Context, messageID, authorID string) error {
	if !s.CanDelete(authorID) {
		return errs.NewError(errs.ErrDeleteForbidden)
	}

	err := s.store.DeleteDoc(ctx, MessagesCollection, messageID)
	if errors.Is(err, docstore.ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	s.log.Info().Str("message_id", messageID).Str("author_id", authorID).Msg("Message deleted")
	return nil
}

func (s *Synchronizer) author(ctx context.Context) (user.User, error) {
	doc, err := s.store.GetDoc(ctx, user.Collection, s.sess.UserID)
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

// offerMessages replaces any undelivered value in ch. Single producer only.
func offerMessages(ch chan []Message, msgs []Message) {
	select {
	case <-ch:
	default:
	}
	ch <- msgs
}
