package chat

import (
	"context"

	"buzzchat/internal/app/docstore"
	"buzzchat/internal/pkg/errs"
)

// Report files a report against the author of msg.
func (s *Synchronizer) Report(ctx context.Context, msg Message) (string, error) {
	if msg.AuthorID == s.sess.UserID {
		return "", errs.NewError(errs.ErrReportSelf)
	}

	id, err := s.store.CreateDoc(ctx, ReportsCollection, docstore.Fields{
		"reportedUser":     msg.AuthorID,
		"reportedUserName": msg.AuthorDisplayName,
		"reportedBy":       s.sess.UserID,
		"reportedByEmail":  s.sess.Email,
		"messageId":        msg.ID,
		"createdAt":        docstore.ServerTimestamp,
	})
	if err != nil {
		return "", errs.Wrap(errs.ErrStoreUnavailable, err)
	}
	s.log.Info().Str("report_id", id).Str("reported_user", msg.AuthorID).Str("message_id", msg.ID).Msg("Message reported")
	return id, nil
}
