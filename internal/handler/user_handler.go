/*
Package handler provides HTTP handler functions for the signed-in user's profile.
*/
package handler

import (
	"net/http"

	"buzzchat/internal/app/profile"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/req"
	"buzzchat/internal/pkg/resp"
)

type PushTokenInput struct {
	Token string `json:"token" validate:"required,max=4096"`
}

func (d *AppDeps) profileManager(r *http.Request) (*profile.Manager, error) {
	sess, err := d.session(r)
	if err != nil {
		return nil, err
	}
	return profile.NewManager(d.Store, sess, nil), nil
}

// HandleGetUserProfile returns the caller's user document.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m, err := deps.profileManager(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		u, err := m.Current(r.Context())
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

// HandleUpdateUserProfile applies a full profile edit.
func HandleUpdateUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input profile.Update
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		m, err := deps.profileManager(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		u, err := m.UpdateProfile(r.Context(), input)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": u})
	}
}

// HandleRegisterPushToken registers a device token with the push gateway and
// stores the resulting endpoint on the caller's user document.
func HandleRegisterPushToken(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PushTokenInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		m, err := deps.profileManager(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		endpoint, err := deps.Push.Register(r.Context(), input.Token)
		if err != nil {
			logx.Error(err, "push: device registration failed")
			resp.RespondError(w, r, errs.Wrap(errs.ErrPushFailed, err))
			return
		}

		if err := m.SetNotificationToken(r.Context(), endpoint); err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"endpoint": endpoint})
	}
}

// HandlePushConfig exposes the public key web clients subscribe with.
func HandlePushConfig(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"vapidKey": deps.Config.VAPIDPublicKey,
			"enabled":  deps.Config.SNSPlatformApplicationARN != "",
		})
	}
}
