package handler

import (
	"net/http"

	"github.com/Jonathanamir1/mixedbyyonatan/internal/auth"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/models"
	"github.com/Jonathanamir1/mixedbyyonatan/internal/service"
	"go.uber.org/zap"
)

type DashboardHandler struct {
	store service.SubmissionStore
	log   *zap.Logger
}

func NewDashboardHandler(store service.SubmissionStore, log *zap.Logger) *DashboardHandler {
	return &DashboardHandler{store: store, log: log}
}

func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	session := auth.GetSession(r.Context())

	var sub *models.Submission
	subs, err := h.store.FindByOwner(r.Context(), session.UserID)
	if err != nil {
		h.log.Warn("dashboard submission lookup failed", zap.String("ownerId", session.UserID), zap.Error(err))
	} else if len(subs) > 0 {
		sub = &subs[0]
	}

	status := ""
	if sub != nil {
		status = string(sub.Status)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": map[string]string{
			"displayName": session.Name(),
			"email":       session.Email,
			"userId":      session.UserID,
		},
		"submission": sub,
		"status":     status,
	})
}
