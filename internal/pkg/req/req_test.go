package req

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"buzzchat/internal/pkg/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loginBody struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func jsonRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	r.Header.Set("Content-Type", contentType)
	return r
}

func TestBindJSON(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		ctype    string
		wantCode int
	}{
		{"ok", `{"email":"a@example.com","password":"x"}`, "application/json", 0},
		{"wrong content type", `{}`, "text/plain", errs.ErrUnsupportedMediaType},
		{"syntax error", `{"email":`, "application/json", errs.ErrInvalidJSONFormat},
		{"unknown field", `{"email":"a@example.com","password":"x","extra":1}`, "application/json", errs.ErrInvalidJSONFormat},
		{"trailing content", `{"email":"a@example.com","password":"x"}{"a":1}`, "application/json", errs.ErrExtraContentInBody},
		{"validation", `{"email":"nope","password":"x"}`, "application/json; charset=utf-8", errs.ErrInvalidParams},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var dst loginBody
			err := BindJSON(jsonRequest(tt.body, tt.ctype), &dst)
			if tt.wantCode == 0 {
				require.Nil(t, err)
				assert.Equal(t, "a@example.com", dst.Email)
				return
			}
			require.NotNil(t, err)
			assert.Equal(t, tt.wantCode, err.Code)
		})
	}
}

func TestSetupMultipart(t *testing.T) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "a.png")
	require.NoError(t, err)
	_, err = fw.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	r := httptest.NewRequest(http.MethodPost, "/", &buf)
	r.Header.Set("Content-Type", mw.FormDataContentType())
	assert.Nil(t, SetupMultipart(httptest.NewRecorder(), r))

	bad := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("x"))
	bad.Header.Set("Content-Type", "multipart/form-data")
	e := SetupMultipart(httptest.NewRecorder(), bad)
	require.NotNil(t, e)
	assert.Equal(t, errs.ErrFormParseFailed, e.Code)
}
