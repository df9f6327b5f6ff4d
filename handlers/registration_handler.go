package handlers

import (
	"errors"
	"net/http"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/services"
)

const maxEvidenceUploadBytes = 10 << 20 // 10MB

type RegistrationHandler struct {
	checkoutService     *services.CheckoutService
	registrationService *services.RegistrationService
}

func NewRegistrationHandler(
	checkoutService *services.CheckoutService,
	registrationService *services.RegistrationService,
) *RegistrationHandler {
	return &RegistrationHandler{
		checkoutService:     checkoutService,
		registrationService: registrationService,
	}
}

// ListTournaments godoc
// @Summary Список турниров
// @Tags tournaments
// @Produce json
// @Success 200 {object} map[string]interface{} "Список турниров"
// @Router /tournaments [get]
func (h *RegistrationHandler) ListTournaments(w http.ResponseWriter, r *http.Request) {
	tournaments, err := h.registrationService.ListTournaments(r.Context())
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournaments": tournaments}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetTournament godoc
// @Summary Карточка турнира
// @Tags tournaments
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 200 {object} map[string]interface{} "Турнир"
// @Failure 404 {object} map[string]string "Турнир не найден"
// @Router /tournaments/{tournamentID} [get]
func (h *RegistrationHandler) GetTournament(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	tournament, err := h.registrationService.GetTournament(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"tournament": tournament}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ListTournamentRegistrations godoc
// @Summary Заявки турнира (лидерборд, страница турнира)
// @Tags registrations
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Param status query string false "Фильтр по статусу (pending, approved, rejected)"
// @Success 200 {object} map[string]interface{} "Список заявок"
// @Failure 504 {object} map[string]string "Истёк таймаут, повторите запрос"
// @Router /tournaments/{tournamentID}/registrations [get]
func (h *RegistrationHandler) ListTournamentRegistrations(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var statusFilter *models.RegistrationStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.RegistrationStatus(raw)
		statusFilter = &status
	}

	regs, err := h.registrationService.ListByTournament(r.Context(), tournamentID, statusFilter)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registrations": regs}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetRegistration godoc
// @Summary Заявка по ID
// @Tags registrations
// @Produce json
// @Param registrationID path string true "Registration ID"
// @Success 200 {object} map[string]interface{} "Заявка"
// @Failure 404 {object} map[string]string "Заявка не найдена"
// @Router /registrations/{registrationID} [get]
func (h *RegistrationHandler) GetRegistration(w http.ResponseWriter, r *http.Request) {
	registrationID, err := getUUIDFromURL(r, "registrationID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	reg, err := h.registrationService.GetByID(r.Context(), registrationID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"registration": reg}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// StartCheckout godoc
// @Summary Открыть сессию оформления заявки
// @Tags checkout
// @Produce json
// @Param tournamentID path string true "Tournament ID"
// @Success 201 {object} map[string]interface{} "Сессия создана"
// @Failure 400 {object} map[string]string "Регистрация закрыта"
// @Failure 404 {object} map[string]string "Турнир не найден"
// @Router /tournaments/{tournamentID}/checkout [post]
func (h *RegistrationHandler) StartCheckout(w http.ResponseWriter, r *http.Request) {
	tournamentID, err := getUUIDFromURL(r, "tournamentID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.checkoutService.Start(r.Context(), tournamentID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"checkout": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// GetCheckout godoc
// @Summary Текущее состояние сессии оформления
// @Tags checkout
// @Produce json
// @Param sessionID path string true "Checkout session ID"
// @Success 200 {object} map[string]interface{} "Состояние сессии"
// @Failure 404 {object} map[string]string "Сессия не найдена или истекла"
// @Router /checkout/{sessionID} [get]
func (h *RegistrationHandler) GetCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getUUIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.checkoutService.Get(sessionID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"checkout": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// SubmitRegistration godoc
// @Summary Отправить форму регистрации
// @Tags checkout
// @Accept json
// @Produce json
// @Param sessionID path string true "Checkout session ID"
// @Param body body services.RegistrationInput true "Форма регистрации"
// @Success 201 {object} map[string]interface{} "Заявка создана, ждём подтверждение оплаты"
// @Failure 404 {object} map[string]string "Сессия не найдена или истекла"
// @Failure 422 {object} map[string]interface{} "Ошибки валидации формы"
// @Router /checkout/{sessionID}/registration [post]
func (h *RegistrationHandler) SubmitRegistration(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getUUIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input services.RegistrationInput
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.checkoutService.Submit(r.Context(), sessionID, input)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusCreated, jsonResponse{"checkout": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// UploadEvidence godoc
// @Summary Загрузить скриншот оплаты
// @Tags checkout
// @Accept multipart/form-data
// @Produce json
// @Param sessionID path string true "Checkout session ID"
// @Param file formData file true "Скриншот оплаты"
// @Success 200 {object} map[string]interface{} "Файл загружен"
// @Failure 404 {object} map[string]string "Сессия не найдена или истекла"
// @Failure 409 {object} map[string]string "Ключ занят или загрузка вытеснена новым выбором файла"
// @Router /checkout/{sessionID}/evidence [post]
func (h *RegistrationHandler) UploadEvidence(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getUUIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxEvidenceUploadBytes)
	if err := r.ParseMultipartForm(maxEvidenceUploadBytes); err != nil {
		badRequestResponse(w, r, errors.New("invalid multipart form or file too large"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		badRequestResponse(w, r, errors.New("file field is required"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	view, err := h.checkoutService.UploadEvidence(r.Context(), sessionID, header.Filename, contentType, file)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"checkout": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}

// ConfirmPayment godoc
// @Summary Подтвердить оплату транзакционной ссылкой
// @Tags checkout
// @Accept json
// @Produce json
// @Param sessionID path string true "Checkout session ID"
// @Param body body object{tx_id=string} true "Транзакционная ссылка"
// @Success 200 {object} map[string]interface{} "Оформление завершено"
// @Failure 400 {object} map[string]string "Нет ссылки или загрузка не завершена"
// @Failure 409 {object} map[string]string "Подтверждение уже идёт или оплата записана с другими данными"
// @Router /checkout/{sessionID}/confirm [post]
func (h *RegistrationHandler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	sessionID, err := getUUIDFromURL(r, "sessionID")
	if err != nil {
		badRequestResponse(w, r, err)
		return
	}

	var input struct {
		TxID string `json:"tx_id"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	view, err := h.checkoutService.Confirm(r.Context(), sessionID, input.TxID)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}
	if err := writeJSON(w, http.StatusOK, jsonResponse{"checkout": view}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
