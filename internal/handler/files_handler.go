package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strconv"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/storage"
	"github.com/go-chi/chi/v5"
)

// BlobOpener reads a stored asset back by key and download token.
type BlobOpener interface {
	Open(ctx context.Context, key, token string) ([]byte, string, error)
}

type FilesHandler struct {
	blobs BlobOpener
}

func NewFilesHandler(blobs BlobOpener) *FilesHandler {
	return &FilesHandler{blobs: blobs}
}

func (h *FilesHandler) Download(w http.ResponseWriter, r *http.Request) {
	// chi matches on RawPath when the request carried non-canonical escapes
	// and on the decoded Path otherwise.
	key := chi.URLParam(r, "*")
	if r.URL.RawPath != "" {
		unescaped, err := url.PathUnescape(key)
		if err != nil {
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		key = unescaped
	}
	data, contentType, err := h.blobs.Open(r.Context(), key, r.URL.Query().Get("token"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to read file")
		return
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, path.Base(key)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Write(data)
}
