package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/service"
	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"
)

// Multipart fields beyond the file itself.
const formOverhead = 1 << 20

type SubmissionHandler struct {
	intakes *service.Factory
	log     *zap.Logger
}

func NewSubmissionHandler(intakes *service.Factory, log *zap.Logger) *SubmissionHandler {
	return &SubmissionHandler{intakes: intakes, log: log}
}

func (h *SubmissionHandler) Get(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSession(r.Context())
	in := h.intakes.New(*session)
	defer in.Close()

	state, err := in.Check(r.Context())
	if err != nil {
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":      state,
		"submission": in.Existing(),
	})
}

func (h *SubmissionHandler) Create(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSession(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, service.MaxFileBytes+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusBadRequest, service.UserMessage(&service.ValidationError{Kind: service.FileTooLarge}))
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer r.MultipartForm.RemoveAll()

	input := service.SubmitInput{
		SourceKind: models.SourceKind(r.FormValue("sourceKind")),
		URL:        r.FormValue("url"),
		TrackName:  r.FormValue("trackName"),
		Message:    r.FormValue("message"),
	}
	if input.SourceKind == models.SourceFileUpload {
		f, err := formFile(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid file")
			return
		}
		if f != nil {
			defer f.Body.(io.Closer).Close()
			input.File = f
		}
	}

	stream := strings.Contains(r.Header.Get("Accept"), "text/event-stream")
	var sse *eventStream
	var opts []service.Option
	if stream {
		var ok bool
		if sse, ok = newEventStream(w); !ok {
			stream = false
		} else {
			opts = append(opts, service.WithProgress(func(f float64) {
				sse.send("progress", map[string]float64{"progress": f})
			}))
		}
	}

	in := h.intakes.New(*session, opts...)
	defer in.Close()

	state, err := in.Check(r.Context())
	if err == nil && state == service.StateAlreadySubmitted {
		err = service.ErrAlreadySubmitted
	}
	var sub *models.Submission
	if err == nil {
		sub, err = in.Submit(r.Context(), input)
	}

	if stream {
		if err != nil {
			sse.send("error", map[string]string{"error": errorMessage(err), "state": string(in.State())})
			return
		}
		sse.send("submitted", sub)
		return
	}
	if err != nil {
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

// formFile returns the uploaded "file" part, or nil when there is none.
// A missing or generic content type is sniffed from the content.
func formFile(r *http.Request) (*service.File, error) {
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	ct := header.Header.Get("Content-Type")
	if ct == "" || ct == "application/octet-stream" {
		ct, err = sniff(file)
		if err != nil {
			file.Close()
			return nil, err
		}
	}
	return &service.File{
		Name:        header.Filename,
		ContentType: ct,
		Size:        header.Size,
		Body:        file,
	}, nil
}

func sniff(f multipart.File) (string, error) {
	mt, err := mimetype.DetectReader(f)
	if err != nil {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return mt.String(), nil
}

// eventStream writes server-sent events to a flushing response.
type eventStream struct {
	w  http.ResponseWriter
	fl http.Flusher
}

func newEventStream(w http.ResponseWriter) (*eventStream, bool) {
	fl, ok := w.(http.Flusher)
	if !ok {
		return nil, false
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()
	return &eventStream{w: w, fl: fl}, true
}

func (s *eventStream) send(event string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", event, data)
	s.fl.Flush()
}
