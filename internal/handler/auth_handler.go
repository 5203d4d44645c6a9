package handler

import (
	"errors"
	"net/http"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/identity"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const stateCookie = "oauth_state"

type AuthHandler struct {
	idp          *identity.Provider
	validate     *validator.Validate
	secureCookie bool
	log          *zap.Logger
}

func NewAuthHandler(idp *identity.Provider, secureCookie bool, log *zap.Logger) *AuthHandler {
	return &AuthHandler{idp: idp, validate: validator.New(), secureCookie: secureCookie, log: log}
}

type signUpRequest struct {
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	DisplayName     string `json:"displayName" validate:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req signUpRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	result, err := h.idp.SignUp(r.Context(), req.Email, req.Password, req.DisplayName)
	if err != nil {
		h.authFailed(w, "sign up failed", err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	result, err := h.idp.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authFailed(w, "sign in failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// FederatedStart redirects to the provider's consent page.
func (h *AuthHandler) FederatedStart(w http.ResponseWriter, r *http.Request) {
	state := uuid.NewString()
	url, err := h.idp.FederatedAuthURL(chi.URLParam(r, "provider"), state)
	if err != nil {
		writeError(w, statusFor(err), errorMessage(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/api/v1/auth",
		MaxAge:   600,
		HttpOnly: true,
		Secure:   h.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, url, http.StatusFound)
}

func (h *AuthHandler) FederatedCallback(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")
	c, err := r.Cookie(stateCookie)
	if err != nil || c.Value == "" || c.Value != r.URL.Query().Get("state") {
		writeError(w, http.StatusBadRequest, "invalid oauth state")
		return
	}
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Path: "/api/v1/auth", MaxAge: -1, HttpOnly: true, Secure: h.secureCookie})

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, "missing authorization code")
		return
	}
	result, err := h.idp.SignInFederated(r.Context(), provider, code)
	if err != nil {
		h.authFailed(w, "federated sign in failed", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.idp.SignOut(r.Context(), auth.GetToken(r.Context())); err != nil {
		h.authFailed(w, "sign out failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "signed_out"})
}

// Session returns the caller's session; the guard has already rejected
// anonymous requests.
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"session": auth.GetSession(r.Context())})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.idp.Me(r.Context(), auth.GetSession(r.Context()).UserID)
	if err != nil {
		writeError(w, http.StatusNotFound, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) authFailed(w http.ResponseWriter, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Warn(msg, zap.Error(err))
	} else {
		h.log.Debug(msg, zap.Error(err))
	}
	writeError(w, status, errorMessage(err))
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request body"
	}
	fe := verrs[0]
	switch {
	case fe.Field() == "ConfirmPassword" && fe.Tag() == "eqfield":
		return "Passwords do not match"
	case fe.Field() == "Email":
		return "Please enter a valid email address"
	case fe.Field() == "DisplayName":
		return "Display name is too long"
	case fe.Tag() == "required":
		return "Please fill in all fields"
	}
	return "invalid request body"
}
