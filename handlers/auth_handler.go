package handlers

import (
	"net/http"

	"github.com/Dosada05/tournament-registrations/services"
)

type AuthHandler struct {
	authService *services.AuthService
}

func NewAuthHandler(authService *services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// LoginOperator godoc
// @Summary Вход в модераторскую консоль
// @Tags auth
// @Accept json
// @Produce json
// @Param body body object{access_key=string} true "Ключ доступа оператора"
// @Success 200 {object} map[string]string "JWT"
// @Failure 401 {object} map[string]string "Неверный ключ"
// @Router /auth/login [post]
func (h *AuthHandler) LoginOperator(w http.ResponseWriter, r *http.Request) {
	var input struct {
		AccessKey string `json:"access_key"`
	}
	if err := readJSON(w, r, &input); err != nil {
		badRequestResponse(w, r, err)
		return
	}

	token, err := h.authService.LoginOperator(input.AccessKey)
	if err != nil {
		mapServiceErrorToHTTP(w, r, err)
		return
	}

	if err := writeJSON(w, http.StatusOK, jsonResponse{"token": token}, nil); err != nil {
		serverErrorResponse(w, r, err)
	}
}
