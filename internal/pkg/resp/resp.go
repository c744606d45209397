/*
Package resp writes the JSON envelope every HTTP endpoint answers with.

Every response body is {code, message, data}; code 0 means success, any other
value is an errs code and comes with the error kind so clients can tell a
dead session from a bad input or an unreachable backend.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"

	"github.com/rs/zerolog"
)

// JSONResponse is the body of every API response.
type JSONResponse struct {
	// Code is 0 on success, an errs code otherwise.
	Code int `json:"code"`

	// Message is the client-facing status text.
	Message string `json:"message"`

	// Kind is the errs.Kind of a failed request.
	Kind errs.Kind `json:"kind,omitempty"`

	// Data is the payload of a successful request.
	Data any `json:"data,omitempty"`
}

// RespondJSON writes payload with httpStatus.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		requestLogger(r).Error().Err(err).Int("http_status", httpStatus).Msg("Error encoding JSON response")
		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondSuccess sends data with code 0 and HTTP 200.
func RespondSuccess(w http.ResponseWriter, r *http.Request, data any) {
	RespondJSON(w, r, http.StatusOK, JSONResponse{
		Code:    0,
		Message: "success",
		Data:    data,
	})
}

// RespondError sends customErr. Its cause, when set, is logged against the
// request and never sent.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	if customErr.Cause != nil {
		ev := requestLogger(r).Warn()
		if customErr.Kind == errs.KindInternal || customErr.Kind == errs.KindTransport {
			ev = requestLogger(r).Error()
		}
		ev.Err(customErr.Cause).Int("code", customErr.Code).Msg("Request failed")
	}

	if customErr.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="buzzchat"`)
	}

	RespondJSON(w, r, customErr.Status, JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
		Kind:    customErr.Kind,
	})
}

// RespondErr sends err as an error response. Errors that are not CustomErrors
// become ErrUnknown.
func RespondErr(w http.ResponseWriter, r *http.Request, err error) {
	if ce, ok := errs.As(err); ok {
		RespondError(w, r, ce)
		return
	}
	RespondError(w, r, errs.Wrap(errs.ErrUnknown, err))
}

// requestLogger returns the logger RequestLogger stored on r, or the global
// one outside that middleware.
func requestLogger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return logx.Logger()
}
