package handler

import (
	"net/http"

	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/req"
	"buzzchat/internal/pkg/resp"
)

type PowVerifyInput struct {
	Nonce   string `json:"nonce" validate:"required"`
	Counter string `json:"counter" validate:"required"`
}

// HandlePowChallenge issues a nonce for the sign-up proof of work.
func HandlePowChallenge(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp.RespondSuccess(w, r, map[string]any{
			"nonce":      deps.PoW.GenerateNonce(),
			"difficulty": deps.PoW.Difficulty(),
			"enabled":    deps.PoW.Enabled(),
		})
	}
}

// HandlePowVerify trades a solved challenge for a single-use proof token.
func HandlePowVerify(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input PowVerifyInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, err := deps.PoW.ValidateProof(input.Nonce, input.Counter)
		if err != nil {
			logx.Warn("PoW verification failed", "error", err.Error())
			resp.RespondError(w, r, errs.NewError(errs.ErrPowChallengeInvalid))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"token": token})
	}
}
