package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/realtime"
	"github.com/Dosada05/tournament-registrations/repositories"
	"github.com/Dosada05/tournament-registrations/storage"
	"github.com/Dosada05/tournament-registrations/utils"
	"github.com/google/uuid"
)

// CheckoutStage — этап конечного автомата оформления заявки.
type CheckoutStage string

const (
	StageFilling              CheckoutStage = "filling"
	StageAwaitingEvidence     CheckoutStage = "awaiting_evidence"
	StageAwaitingConfirmation CheckoutStage = "awaiting_confirmation"
	StageDone                 CheckoutStage = "done"
	StageFailed               CheckoutStage = "failed"
)

// CheckoutSession держит состояние одного прохода регистрант→оплата.
// registrationID и uploadScopeToken, полученные на ранних этапах,
// сохраняются, чтобы повтор после сбоя продолжался с места сбоя, а не с
// пустой формы.
type CheckoutSession struct {
	ID           uuid.UUID
	TournamentID uuid.UUID

	mu          sync.Mutex
	stage       CheckoutStage
	failedStage CheckoutStage

	registrationID   uuid.UUID
	uploadScopeToken string

	// Текущий выбранный файл: evidenceKey валиден только при evidenceReady.
	// uploadSeq растёт на каждом выборе файла; завершившаяся загрузка с
	// устаревшим seq отбрасывается, её ключ никогда не подтверждается.
	evidenceKey   string
	evidenceReady bool
	uploadSeq     uint64

	// Single-flight: повторный Confirm, пока первый не завершился,
	// отклоняется, а не ставится в очередь.
	confirmInFlight bool

	contactEmail    string
	contactFullName string
	teamName        string

	lastActive time.Time
}

// CheckoutView — снимок сессии для ответа API.
type CheckoutView struct {
	SessionID      uuid.UUID     `json:"session_id"`
	TournamentID   uuid.UUID     `json:"tournament_id"`
	Stage          CheckoutStage `json:"stage"`
	FailedStage    CheckoutStage `json:"failed_stage,omitempty"`
	RegistrationID uuid.UUID     `json:"registration_id,omitempty"`
	EvidenceKey    string        `json:"evidence_key,omitempty"`
	EvidenceReady  bool          `json:"evidence_ready"`
}

func (s *CheckoutSession) viewLocked() *CheckoutView {
	return &CheckoutView{
		SessionID:      s.ID,
		TournamentID:   s.TournamentID,
		Stage:          s.stage,
		FailedStage:    s.failedStage,
		RegistrationID: s.registrationID,
		EvidenceKey:    s.evidenceKey,
		EvidenceReady:  s.evidenceReady,
	}
}

// effectiveStage возвращает этап, с которого разрешён повтор: для Failed это
// этап, на котором произошёл сбой.
func (s *CheckoutSession) effectiveStage() CheckoutStage {
	if s.stage == StageFailed {
		return s.failedStage
	}
	return s.stage
}

// RegistrationInput — форма регистрации, как её присылает клиент.
type RegistrationInput struct {
	TeamName    string                       `json:"team_name"`
	TeamMembers []models.TeamMember          `json:"team_members"`
	ContactInfo models.ContactInfo           `json:"contact_info"`
	GameDetails models.GameDetails           `json:"game_details"`
	Preferences models.TournamentPreferences `json:"tournament_preferences"`
	LogoURL     *string                      `json:"logo_url,omitempty"`
}

// CheckoutService — оркестратор жизненного цикла заявки: форма → загрузка
// подтверждения оплаты → подтверждение транзакции → ожидание модерации.
type CheckoutService struct {
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
	uploader         storage.FileUploader
	notifier         Notifier
	bus              *realtime.Bus
	logger           *slog.Logger

	sessionTTL time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sessions map[uuid.UUID]*CheckoutSession
}

func NewCheckoutService(
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
	uploader storage.FileUploader,
	notifier Notifier,
	bus *realtime.Bus,
	logger *slog.Logger,
	sessionTTL time.Duration,
) *CheckoutService {
	if sessionTTL <= 0 {
		sessionTTL = 45 * time.Minute
	}
	return &CheckoutService{
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
		uploader:         uploader,
		notifier:         notifier,
		bus:              bus,
		logger:           logger,
		sessionTTL:       sessionTTL,
		now:              time.Now,
		sessions:         make(map[uuid.UUID]*CheckoutSession),
	}
}

// Start открывает сессию оформления для турнира. Отсутствующий или закрытый
// для регистрации турнир — фатально для всей попытки.
func (s *CheckoutService) Start(ctx context.Context, tournamentID uuid.UUID) (*CheckoutView, error) {
	tournament, err := s.tournamentRepo.FindByID(ctx, tournamentID)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament: %w", err)
	}
	if !tournament.RegistrationOpen(s.now()) {
		return nil, ErrRegistrationNotOpen
	}

	session := &CheckoutSession{
		ID:           uuid.New(),
		TournamentID: tournament.ID,
		stage:        StageFilling,
		lastActive:   s.now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	session.mu.Lock()
	defer session.mu.Unlock()
	return session.viewLocked(), nil
}

func (s *CheckoutService) session(id uuid.UUID) (*CheckoutSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, ErrCheckoutSessionNotFound
	}
	return session, nil
}

// Get возвращает снимок сессии.
func (s *CheckoutService) Get(sessionID uuid.UUID) (*CheckoutView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	session.mu.Lock()
	defer session.mu.Unlock()
	return session.viewLocked(), nil
}

// Submit валидирует форму и создаёт запись заявки. Создание — первая запись
// в хранилище, поэтому при любой ошибке частичных данных не остаётся и
// пользователь может повторить сразу.
func (s *CheckoutService) Submit(ctx context.Context, sessionID uuid.UUID, input RegistrationInput) (*CheckoutView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	defer session.mu.Unlock()
	session.lastActive = s.now()

	if session.effectiveStage() != StageFilling {
		return nil, ErrCheckoutStageInvalid
	}

	reg := &models.Registration{
		TournamentID: session.TournamentID,
		TeamName:     input.TeamName,
		TeamMembers:  input.TeamMembers,
		ContactInfo:  input.ContactInfo,
		GameDetails:  input.GameDetails,
		Preferences:  input.Preferences,
		LogoURL:      input.LogoURL,
	}
	if fieldErrs := reg.Validate(); fieldErrs != nil {
		return nil, &ValidationError{Fields: fieldErrs}
	}

	scopeToken, err := utils.NewToken()
	if err != nil {
		return nil, err
	}
	reg.UploadScopeToken = scopeToken

	if err := s.registrationRepo.Create(ctx, reg); err != nil {
		if errors.Is(err, repositories.ErrRegistrationTournamentInvalid) {
			session.stage = StageFailed
			session.failedStage = StageFilling
			return nil, ErrTournamentNotFound
		}
		// Transient: остаёмся в Filling, пользователь повторяет сам.
		return nil, fmt.Errorf("failed to create registration: %w", err)
	}

	session.registrationID = reg.ID
	session.uploadScopeToken = scopeToken
	session.contactEmail = reg.ContactInfo.Email
	session.contactFullName = reg.ContactInfo.FullName
	session.teamName = reg.TeamName
	session.stage = StageAwaitingEvidence

	s.bus.Publish(realtime.Event{
		Type:           realtime.EventInsert,
		Table:          realtime.TableRegistrations,
		RegistrationID: reg.ID,
		TournamentID:   reg.TournamentID,
	})

	return session.viewLocked(), nil
}

// EvidenceKey строит ключ blob-а: {tournamentID}/{submissionToken}_{fileName}.
// Свежий случайный токен делает ключ бесколлизионным и вычислимым до
// завершения загрузки.
func EvidenceKey(tournamentID uuid.UUID, submissionToken, fileName string) string {
	return fmt.Sprintf("%s/%s_%s", tournamentID, submissionToken, utils.SanitizeFileName(fileName))
}

// UploadEvidence загружает скриншот оплаты для текущего выбора файла. Выбор
// нового файла до завершения предыдущей загрузки обесценивает её результат:
// устаревший ключ никогда не попадает в заявку.
func (s *CheckoutService) UploadEvidence(ctx context.Context, sessionID uuid.UUID, fileName, contentType string, reader io.Reader) (*CheckoutView, error) {
	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	session.lastActive = s.now()

	stage := session.effectiveStage()
	if stage != StageAwaitingEvidence && stage != StageAwaitingConfirmation {
		session.mu.Unlock()
		return nil, ErrCheckoutStageInvalid
	}
	if session.confirmInFlight {
		session.mu.Unlock()
		return nil, ErrConfirmationInFlight
	}

	submissionToken, err := utils.NewToken()
	if err != nil {
		session.mu.Unlock()
		return nil, err
	}
	key := EvidenceKey(session.TournamentID, submissionToken, fileName)
	scopeToken := session.uploadScopeToken

	session.uploadSeq++
	seq := session.uploadSeq
	session.evidenceReady = false
	session.evidenceKey = ""
	session.mu.Unlock()

	// Сетевая часть — вне локов сессии.
	result, uploadErr := s.uploader.Upload(ctx, key, contentType, scopeToken, reader)

	session.mu.Lock()
	defer session.mu.Unlock()

	if session.uploadSeq != seq {
		// Пока шла загрузка, пользователь выбрал другой файл. Результат
		// отброшен; осиротевший blob убираем в фоне.
		if uploadErr == nil {
			s.deleteEvidenceAsync(result.Key)
		}
		return nil, ErrEvidenceSuperseded
	}

	if uploadErr != nil {
		if errors.Is(uploadErr, storage.ErrDuplicateKey) {
			// Токены делают ключи бесколлизионными, так что дубликат — не
			// повод для слепого повтора.
			return nil, ErrEvidenceDuplicate
		}
		return nil, fmt.Errorf("failed to upload payment evidence: %w", uploadErr)
	}

	session.evidenceKey = result.Key
	session.evidenceReady = true
	if session.stage == StageFailed {
		session.stage = session.failedStage
		session.failedStage = ""
	}
	return session.viewLocked(), nil
}

// Confirm записывает транзакционную ссылку и ключ подтверждения одной
// атомарной операцией репозитория. Повтор после сетевой ошибки обязан
// использовать тот же ключ — репозиторий примет идентичную пару как no-op.
func (s *CheckoutService) Confirm(ctx context.Context, sessionID uuid.UUID, txID string) (*CheckoutView, error) {
	if txID == "" {
		return nil, ErrTxReferenceRequired
	}

	session, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	session.mu.Lock()
	session.lastActive = s.now()

	stage := session.effectiveStage()
	if stage != StageAwaitingEvidence && stage != StageAwaitingConfirmation {
		session.mu.Unlock()
		return nil, ErrCheckoutStageInvalid
	}
	if !session.evidenceReady {
		session.mu.Unlock()
		return nil, ErrEvidenceNotReady
	}
	if session.confirmInFlight {
		session.mu.Unlock()
		return nil, ErrConfirmationInFlight
	}

	session.confirmInFlight = true
	session.stage = StageAwaitingConfirmation
	session.failedStage = ""
	registrationID := session.registrationID
	evidenceKey := session.evidenceKey
	session.mu.Unlock()

	updateErr := s.registrationRepo.UpdatePayment(ctx, registrationID, txID, evidenceKey)

	session.mu.Lock()
	defer session.mu.Unlock()
	session.confirmInFlight = false

	if updateErr != nil {
		switch {
		case errors.Is(updateErr, repositories.ErrRegistrationNotFound):
			session.stage = StageFailed
			session.failedStage = StageAwaitingConfirmation
			return nil, ErrRegistrationNotFound
		case errors.Is(updateErr, repositories.ErrPaymentConflict):
			session.stage = StageFailed
			session.failedStage = StageAwaitingConfirmation
			return nil, ErrPaymentAlreadyRecorded
		default:
			// Transient: остаёмся на этапе подтверждения, повтор пойдёт с
			// тем же evidence-ключом.
			return nil, fmt.Errorf("failed to confirm payment: %w", updateErr)
		}
	}

	session.stage = StageDone

	s.bus.Publish(realtime.Event{
		Type:           realtime.EventUpdate,
		Table:          realtime.TableRegistrations,
		RegistrationID: registrationID,
		TournamentID:   session.TournamentID,
	})

	notifyAsync(s.logger, s.notifier, StatusNotification{
		Email:        session.contactEmail,
		FullName:     session.contactFullName,
		TeamName:     session.teamName,
		TournamentID: session.TournamentID,
	})

	return session.viewLocked(), nil
}

func (s *CheckoutService) deleteEvidenceAsync(key string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := s.uploader.Delete(ctx, key); err != nil {
			s.logger.Warn("failed to delete superseded evidence blob",
				slog.String("key", key),
				slog.Any("error", err),
			)
		}
	}()
}

// SweepExpired убирает простаивающие и завершённые сессии. Запускается по
// расписанию из main.
func (s *CheckoutService) SweepExpired() int {
	cutoff := s.now().Add(-s.sessionTTL)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, session := range s.sessions {
		session.mu.Lock()
		expired := session.lastActive.Before(cutoff)
		session.mu.Unlock()
		if expired {
			delete(s.sessions, id)
			removed++
		}
	}
	if removed > 0 {
		s.logger.Info("swept expired checkout sessions", slog.Int("count", removed))
	}
	return removed
}
