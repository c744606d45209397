/*
Package handler provides HTTP handler functions for account sign-up, sign-in and token refresh.
*/
package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"buzzchat/internal/app/identity"
	"buzzchat/internal/app/profile"
	"buzzchat/internal/app/session"
	"buzzchat/internal/app/user"
	"buzzchat/internal/pkg/auth/jwt"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/req"
	"buzzchat/internal/pkg/resp"
)

type RegisterInput struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func credentialResponse(cred identity.Credential, u user.User) map[string]any {
	return map[string]any{
		"token":     cred.Token,
		"expiresAt": cred.ExpiresAt.UTC().Format(time.RFC3339),
		"user":      u,
	}
}

// HandleRegister creates an account and its user document. A proof token is
// required when the PoW gate is enabled.
func HandleRegister(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input RegisterInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		name := strings.TrimSpace(input.DisplayName)
		if name != "" && !user.ValidNameLength(name) {
			resp.RespondError(w, r, errs.NewError(errs.ErrNameLength))
			return
		}

		if !deps.PoW.ConsumeProofToken(r) {
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeRequired))
			return
		}

		cred, err := deps.Identity.SignUp(r.Context(), input.Email, input.Password)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		role := user.RoleFor(cred.Email, deps.Config.ModeratorEmail)
		u, err := profile.Register(r.Context(), deps.Store, cred.UserID, cred.Email, name, role)
		if err != nil {
			// Without a user document the account could never start a session.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
			defer cancel()
			if delErr := deps.Identity.DeleteAccount(ctx, cred.UserID); delErr != nil {
				logx.Error(delErr, "register: failed to roll back account", "user_id", cred.UserID)
			}
			resp.RespondErr(w, r, err)
			return
		}

		logx.Info("User registered", "user_id", u.ID, "role", string(u.Role))
		resp.RespondSuccess(w, r, credentialResponse(cred, u))
	}
}

// HandleLogin verifies credentials and issues a token.
func HandleLogin(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if payload := jwt.GetPayloadFromContext(r); payload != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrAlreadyLoggedIn))
			return
		}

		var input LoginInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		cred, err := deps.Identity.SignIn(r.Context(), input.Email, input.Password)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		sess, err := session.Start(r.Context(), deps.Store, cred)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		u, err := profile.NewManager(deps.Store, sess, nil).Current(r.Context())
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, credentialResponse(cred, u))
	}
}

// HandleRefresh force-refreshes the caller's token against the account store.
func HandleRefresh(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred, err := deps.Identity.RefreshToken(r.Context(), jwt.TokenFromRequest(r), true)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"token":     cred.Token,
			"expiresAt": cred.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}
}
