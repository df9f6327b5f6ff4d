package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/services"
	"github.com/google/uuid"
)

type ModerationHandler struct {
	moderationService *services.ModerationService
}

func NewModerationHandler(moderationService *services.ModerationService) *ModerationHandler {
	return &ModerationHandler{moderationService: moderationService}
}

// ListRegistrations godoc
// @Summary Список заявок для модерации
// @Tags moderation
// @Produce json
// @Param tournament_id query string false "Фильтр по турниру"
// @Param status query string false "Фильтр по статусу (pending, approved, rejected)"
// @Success 200 {object} map[string]interface{} "Список заявок"
// @Failure 504 {object} map[string]string "Истёк таймаут, повторите запрос"
// @Security BearerAuth
// @Router /admin/registrations [get]
func (h *ModerationHandler) ListRegistrations(w http.ResponseWriter, r *http.Request) {
	var tournamentID *uuid.UUID
	if raw := r.URL.Query().Get("tournament_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			badRequestResponse(w, r, err)
			return
		}
		tournamentID = &id
	}

	var statusFilter *models.RegistrationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.RegistrationStatus(raw)
		statusFilter = &status
	}

	regs, err := h.moderationService.List(r.Context(), tournamentID, statusFilter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registrations": regs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ApproveRegistration godoc
// @Summary Одобрить заявку
// @Tags moderation
// @Produce json
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} map[string]interface{} "Заявка одобрена"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Failure 409 {object} map[string]string "Заявка уже обработана"
// @Security BearerAuth
// @Router /admin/registrations/{registrationID}/approve [post]
func (h *ModerationHandler) ApproveRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getUUIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	reg, err := h.moderationService.Approve(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// RejectRegistration godoc
// @Summary Отклонить заявку
// @Tags moderation
// @Description Удаляет скриншот оплаты (best-effort) и переводит заявку в rejected.
// @Produce json
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} map[string]interface{} "Заявка отклонена"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Failure 409 {object} map[string]string "Заявка уже обработана"
// @Security BearerAuth
// @Router /admin/registrations/{registrationID}/reject [post]
func (h *ModerationHandler) RejectRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getUUIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	reg, err := h.moderationService.Reject(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// DeleteRegistration godoc
// @Summary Удалить заявку безвозвратно
// @Tags moderation
// @Param registrationID path string true "Registration ID"
// @Success 204 "Заявка удалена"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Security BearerAuth
// @Router /admin/registrations/{registrationID} [delete]
func (h *ModerationHandler) DeleteRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getUUIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	if err := h.moderationService.Delete(r.Context(), registrationID); err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetEvidenceURL godoc
// @Summary Публичный URL скриншота оплаты
// @Tags moderation
// @Produce json
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} map[string]string "URL скриншота"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Failure 503 {object} map[string]string "Скриншот недоступен"
// @Security BearerAuth
// @Router /admin/registrations/{registrationID}/evidence [get]
func (h *ModerationHandler) GetEvidenceURL(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getUUIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	url, err := h.moderationService.EvidenceURL(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"evidence_url": url}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
