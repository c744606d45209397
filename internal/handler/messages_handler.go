/*
Package handler provides HTTP handler functions for reading and deleting chat messages.
*/
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/docstore"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/resp"
)

// HandleListMessages returns the current ordered history, rendered for the caller.
func HandleListMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.session(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		snapshots, err := chat.NewSynchronizer(deps.Store, sess).Subscribe(ctx)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		msgs, ok := <-snapshots
		if !ok {
			resp.RespondError(w, r, errs.NewError(errs.ErrStoreUnavailable))
			return
		}

		resp.RespondSuccess(w, r, chat.SnapshotPayload{Messages: chat.Views(msgs, sess)})
	}
}

// HandleDeleteMessage removes a message for its author or a moderator. The
// optional authorId query parameter must agree with the stored author.
// The stored author is read before the permission check, so a refused delete
// costs one store read here while Synchronizer.Remove itself makes none.
func HandleDeleteMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.session(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		id := chi.URLParam(r, "id")
		doc, err := deps.Store.GetDoc(r.Context(), chat.MessagesCollection, id)
		if errors.Is(err, docstore.ErrNotFound) {
			resp.RespondError(w, r, errs.NewError(errs.ErrMessageNotFound))
			return
		}
		if err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrStoreUnavailable, err))
			return
		}

		authorID, _ := doc.Fields["authorId"].(string)
		if claimed := r.URL.Query().Get("authorId"); claimed != "" && claimed != authorID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := chat.NewSynchronizer(deps.Store, sess).Remove(r.Context(), id, authorID); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"id": id})
	}
}
