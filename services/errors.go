package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-registrations/models"
)

// Общие ошибки, используемые в разных сервисах и маппинге HTTP.
var (
	// Ресурс не найден (универсальная)
	ErrNotFound = errors.New("requested resource not found")

	// Ошибки валидации и бизнес-правил
	ErrValidationFailed    = errors.New("validation failed")
	ErrRegistrationNotOpen = errors.New("tournament registration is not open")
	ErrTxReferenceRequired = errors.New("transaction reference is required")
	ErrInvalidStatusFilter = errors.New("invalid registration status filter")

	// Ошибки конфликтов
	ErrPaymentAlreadyRecorded = errors.New("payment already recorded for this registration")
	ErrStatusNotPending       = errors.New("registration has already been processed")
	ErrEvidenceDuplicate      = errors.New("file already uploaded, choose another")
	ErrEvidenceSuperseded     = errors.New("upload superseded by a newer file selection")
	ErrConfirmationInFlight   = errors.New("payment confirmation already in progress")

	// Ошибки этапов checkout
	ErrCheckoutStageInvalid = errors.New("operation not allowed at this checkout stage")
	ErrEvidenceNotReady     = errors.New("payment evidence upload has not completed")

	// Ошибки аутентификации
	ErrInvalidCredentials = errors.New("invalid access key")

	// Ошибки, специфичные для сущностей
	ErrTournamentNotFound      = errors.New("tournament not found")
	ErrRegistrationNotFound    = errors.New("registration not found")
	ErrCheckoutSessionNotFound = errors.New("checkout session not found or expired")

	// Деградации с явным повтором на стороне пользователя
	ErrRequestTimedOut     = errors.New("the request timed out, try again")
	ErrEvidenceUnavailable = errors.New("payment evidence is currently unavailable")
)

// ValidationError несёт пофилдовые проблемы формы регистрации. Обрабатывается
// локально: пользователь исправляет форму и повторяет, до репозитория такая
// заявка не доходит.
type ValidationError struct {
	Fields models.ValidationErrors
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for %d field(s)", len(e.Fields))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}
