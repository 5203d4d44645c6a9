package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/identity"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/service"
)

const maxJSONBody = 1 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func readJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// statusFor maps workflow and identity errors to response codes.
func statusFor(err error) int {
	var verr *service.ValidationError
	var terr *service.TransportError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrAlreadySubmitted), errors.Is(err, service.ErrNotAwaitingInput):
		return http.StatusConflict
	case errors.Is(err, service.ErrSessionEnded), errors.Is(err, identity.ErrSessionInvalid):
		return http.StatusUnauthorized
	case errors.As(err, &terr):
		return http.StatusBadGateway
	case errors.Is(err, identity.ErrUnknownProvider):
		return http.StatusNotFound
	}
	switch identity.KindOf(err) {
	case identity.EmailInUse:
		return http.StatusConflict
	case identity.WeakPassword:
		return http.StatusBadRequest
	case identity.InvalidCredentials:
		return http.StatusUnauthorized
	}
	return http.StatusInternalServerError
}

// errorMessage is the user-visible text for err.
func errorMessage(err error) string {
	var ae *identity.AuthError
	if errors.As(err, &ae) {
		return ae.Msg
	}
	switch {
	case errors.Is(err, identity.ErrUnknownProvider):
		return "Unknown sign-in provider"
	case errors.Is(err, identity.ErrSessionInvalid):
		return "invalid session"
	}
	return service.UserMessage(err)
}
