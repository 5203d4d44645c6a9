package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type zeros struct{}

func (zeros) Read(p []byte) (int, error) {
	clear(p)
	return len(p), nil
}

func TestCreateRejectsOversizedBody(t *testing.T) {
	const boundary = "mixboundary"
	body := io.MultiReader(
		strings.NewReader("--"+boundary+"\r\n"+
			`Content-Disposition: form-data; name="file"; filename="huge.wav"`+"\r\n"+
			"Content-Type: audio/wav\r\n\r\n"),
		io.LimitReader(zeros{}, service.MaxFileBytes+formOverhead+1),
		strings.NewReader("\r\n--"+boundary+"--\r\n"),
	)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/submission", body)
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	req = req.WithContext(auth.WithSession(req.Context(), &models.Session{ID: "s1", UserID: "u1"}))

	rec := httptest.NewRecorder()
	NewSubmissionHandler(nil, zap.NewNop()).Create(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var out map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, "File size must be 50MB or less", out["error"])
}
