/*
Package handler provides the HTTP handler function for WebSocket connection upgrading and initialization.

HandleWebSocket authenticates the token query parameter, resolves the session,
upgrades the connection and runs the client lifecycle until the socket closes.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/session"
	"buzzchat/internal/pkg/auth/jwt"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/resp"
)

// HandleWebSocket creates an HTTP HandlerFunc to process WebSocket connection requests.
func HandleWebSocket(deps *AppDeps, upgrader websocket.Upgrader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := jwt.TokenFromRequest(r)
		if token == "" {
			logx.Warn("WebSocket request rejected: missing token")
			resp.RespondError(w, r, errs.NewError(errs.ErrNotSignedIn))
			return
		}

		cred, err := deps.Identity.Verify(token)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		sess, err := session.Start(r.Context(), deps.Store, cred)
		if err != nil {
			logx.Info("WebSocket connection rejected: no session", "user_id", cred.UserID, "error", err.Error())
			resp.RespondErr(w, r, err)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade connection to WebSocket")
			return
		}

		auth := identity.NewAuth(deps.Identity)
		auth.Restore(cred)

		logx.Info("WebSocket connection established", "user_id", sess.UserID, "role", string(sess.Role))

		chat.NewClient(deps.clientDeps(), conn, auth, sess).Serve()
	}
}
