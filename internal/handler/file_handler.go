package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"buzzchat/internal/app/chat"
	"buzzchat/internal/app/storage"
	"buzzchat/internal/pkg/errs"
	"buzzchat/internal/pkg/logx"
	"buzzchat/internal/pkg/req"
	"buzzchat/internal/pkg/resp"
)

// UploadFormField is the multipart field carrying the image.
const UploadFormField = "file"

// HandleUploadImage stores a chat image under the caller's prefix and returns
// the stable download URL to put in a message.
func HandleUploadImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := deps.session(r)
		if err != nil {
			resp.RespondErr(w, r, err)
			return
		}

		if customErr := req.SetupMultipart(w, r); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		file, header, err := r.FormFile(UploadFormField)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}
		defer file.Close()

		mimeType := header.Header.Get("Content-Type")
		ext, customErr := chat.ValidateImage(header.Filename, mimeType, header.Size)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		body, err := io.ReadAll(io.LimitReader(file, chat.MaxAttachmentSize+1))
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrFormParseFailed))
			return
		}
		if sniffed := chat.SniffImage(body); sniffed != chat.ExtToMIME[ext] {
			logx.Warn("Upload rejected: content does not match declared type", "declared", mimeType, "detected", sniffed)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileTypeInvalid))
			return
		}

		key := storage.ImageKey(sess.UserID, ext)
		if err := deps.Storage.Upload(r.Context(), key, chat.ExtToMIME[ext], body); err != nil {
			resp.RespondError(w, r, errs.Wrap(errs.ErrFileStorageFailed, err))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"key": key,
			"url": storage.DownloadURL(key),
		})
	}
}

// HandleDownloadImage serves an uploaded image. Stores that can read objects
// back stream them directly, others redirect to a short-lived presigned URL.
func HandleDownloadImage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.URL.Query().Get("k")
		if !storage.ValidKey(key) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if reader, ok := deps.Storage.(storage.Reader); ok {
			body, contentType, err := reader.Get(r.Context(), key)
			if err != nil {
				respondStorageErr(w, r, err)
				return
			}
			w.Header().Set("Content-Type", contentType)
			w.Header().Set("Content-Length", strconv.Itoa(len(body)))
			w.Header().Set("Cache-Control", "private, max-age=3600")
			w.WriteHeader(http.StatusOK)
			w.Write(body)
			return
		}

		url, err := deps.Storage.PresignDownload(r.Context(), key, storage.DownloadURLTTL)
		if err != nil {
			respondStorageErr(w, r, err)
			return
		}

		http.Redirect(w, r, url, http.StatusFound)
	}
}

func respondStorageErr(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, storage.ErrObjectNotFound) {
		resp.RespondError(w, r, errs.NewError(errs.ErrFileNotFound))
		return
	}
	resp.RespondError(w, r, errs.Wrap(errs.ErrFileStorageFailed, err))
}
