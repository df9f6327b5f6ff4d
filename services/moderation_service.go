package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/realtime"
	"github.com/Dosada05/tournament-registrations/repositories"
	"github.com/Dosada05/tournament-registrations/storage"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const (
	moderationListTimeout  = 10 * time.Second
	evidenceCheckTimeout   = 5 * time.Second
	tournamentResolveLimit = 8
)

// ModerationService — админские операции над заявками. Каждый переход
// статуса защищён условием "текущий статус pending" на границе репозитория:
// это единственный механизм, предотвращающий lost-update между двумя
// одновременными модераторами.
type ModerationService struct {
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
	uploader         storage.FileUploader
	notifier         Notifier
	bus              *realtime.Bus
	logger           *slog.Logger
}

func NewModerationService(
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
	uploader storage.FileUploader,
	notifier Notifier,
	bus *realtime.Bus,
	logger *slog.Logger,
) *ModerationService {
	return &ModerationService{
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
		uploader:         uploader,
		notifier:         notifier,
		bus:              bus,
		logger:           logger,
	}
}

// Approve переводит pending-заявку в approved. Подтверждение оплаты не
// трогает: скриншот остаётся доступным аудиту. Повтор того же решения —
// no-op успех без повторных оповещений.
func (s *ModerationService) Approve(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.findRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.StatusApproved {
		return reg, nil
	}
	if reg.Status != models.StatusPending {
		return nil, ErrStatusNotPending
	}

	if err := s.updateStatus(ctx, reg, models.StatusApproved); err != nil {
		return nil, err
	}
	return reg, nil
}

// Reject отклоняет pending-заявку: удаляет blob подтверждения (best-effort,
// ровно одна попытка, неудача логируется и не блокирует), затем пишет статус.
// Статус прочитанной записи проверяется до того, как тронут blob: скриншот
// уже одобренной заявки не уничтожается. Гонку с параллельным модератором
// в окне между чтением и записью страхует pending-условие в репозитории.
func (s *ModerationService) Reject(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.findRegistration(ctx, id)
	if err != nil {
		return nil, err
	}
	if reg.Status == models.StatusRejected {
		return reg, nil
	}
	if reg.Status != models.StatusPending {
		return nil, ErrStatusNotPending
	}

	s.removeEvidence(ctx, reg)

	if err := s.updateStatus(ctx, reg, models.StatusRejected); err != nil {
		return nil, err
	}
	return reg, nil
}

// Delete — единственное жёсткое удаление в системе, доступно для записи в
// любом статусе и необратимо.
func (s *ModerationService) Delete(ctx context.Context, id uuid.UUID) error {
	reg, err := s.findRegistration(ctx, id)
	if err != nil {
		return err
	}

	s.removeEvidence(ctx, reg)

	if err := s.registrationRepo.Delete(ctx, id); err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to delete registration: %w", err)
	}

	s.bus.Publish(realtime.Event{
		Type:           realtime.EventDelete,
		Table:          realtime.TableRegistrations,
		RegistrationID: reg.ID,
		TournamentID:   reg.TournamentID,
	})
	return nil
}

// List — чистое чтение для админского экрана. Отсутствующий родительский
// турнир деградирует до плейсхолдера, а не роняет список.
func (s *ModerationService) List(ctx context.Context, tournamentID *uuid.UUID, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	if statusFilter != nil && !statusFilter.Valid() {
		return nil, ErrInvalidStatusFilter
	}

	ctx, cancel := context.WithTimeout(ctx, moderationListTimeout)
	defer cancel()

	var (
		regs []*models.Registration
		err  error
	)
	if tournamentID != nil {
		regs, err = s.registrationRepo.ListByTournament(ctx, *tournamentID, statusFilter, true)
	} else {
		regs, err = s.registrationRepo.ListByStatus(ctx, statusFilter)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRequestTimedOut
		}
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}

	if err := s.resolveTournaments(ctx, regs); err != nil {
		return nil, err
	}
	return regs, nil
}

// resolveTournaments подтягивает недостающие родительские турниры
// параллельно, по одному запросу на уникальный id.
func (s *ModerationService) resolveTournaments(ctx context.Context, regs []*models.Registration) error {
	missing := make(map[uuid.UUID]bool)
	for _, reg := range regs {
		if reg.Tournament == nil {
			missing[reg.TournamentID] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	var mu sync.Mutex
	resolved := make(map[uuid.UUID]*models.Tournament, len(missing))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(tournamentResolveLimit)
	for id := range missing {
		id := id
		g.Go(func() error {
			t, err := s.tournamentRepo.FindByID(gctx, id)
			if err != nil {
				if errors.Is(err, repositories.ErrTournamentNotFound) {
					// Заявка могла быть прочитана раньше, чем разрешим её
					// родителя. Плейсхолдер вместо падения.
					t = &models.Tournament{ID: id, Title: "(unavailable)"}
				} else {
					return err
				}
			}
			mu.Lock()
			resolved[id] = t
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrRequestTimedOut
		}
		return fmt.Errorf("failed to resolve tournaments: %w", err)
	}

	for _, reg := range regs {
		if reg.Tournament == nil {
			reg.Tournament = resolved[reg.TournamentID]
		}
	}
	return nil
}

// EvidenceURL возвращает публичный URL скриншота оплаты, предварительно
// проверив существование blob-а в пределах таймаута. Просмотр деградирует в
// явное "недоступно", а не виснет.
func (s *ModerationService) EvidenceURL(ctx context.Context, id uuid.UUID) (string, error) {
	reg, err := s.findRegistration(ctx, id)
	if err != nil {
		return "", err
	}
	if reg.ScreenshotPath == nil {
		return "", ErrEvidenceUnavailable
	}

	checkCtx, cancel := context.WithTimeout(ctx, evidenceCheckTimeout)
	defer cancel()

	exists, err := s.uploader.Exists(checkCtx, *reg.ScreenshotPath)
	if err != nil {
		s.logger.Warn("evidence existence check failed",
			slog.String("registration_id", id.String()),
			slog.Any("error", err),
		)
		return "", ErrEvidenceUnavailable
	}
	if !exists {
		return "", ErrEvidenceUnavailable
	}
	return s.uploader.GetPublicURL(*reg.ScreenshotPath), nil
}

func (s *ModerationService) findRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	return reg, nil
}

func (s *ModerationService) updateStatus(ctx context.Context, reg *models.Registration, status models.RegistrationStatus) error {
	err := s.registrationRepo.UpdateStatus(ctx, reg.ID, status)
	if err != nil {
		switch {
		case errors.Is(err, repositories.ErrStatusAlreadySet):
			// Параллельный модератор успел записать то же решение: исход
			// достигнут, события и оповещения уже разосланы им.
			reg.Status = status
			return nil
		case errors.Is(err, repositories.ErrRegistrationNotFound):
			return ErrRegistrationNotFound
		case errors.Is(err, repositories.ErrStatusConflict):
			return ErrStatusNotPending
		default:
			return fmt.Errorf("failed to update registration status: %w", err)
		}
	}
	reg.Status = status

	s.bus.Publish(realtime.Event{
		Type:           realtime.EventUpdate,
		Table:          realtime.TableRegistrations,
		RegistrationID: reg.ID,
		TournamentID:   reg.TournamentID,
	})

	notifyAsync(s.logger, s.notifier, StatusNotification{
		Email:        reg.ContactInfo.Email,
		FullName:     reg.ContactInfo.FullName,
		TeamName:     reg.TeamName,
		TournamentID: reg.TournamentID,
		Status:       string(status),
	})
	return nil
}

func (s *ModerationService) removeEvidence(ctx context.Context, reg *models.Registration) {
	if reg.ScreenshotPath == nil {
		return
	}
	if err := s.uploader.Delete(ctx, *reg.ScreenshotPath); err != nil {
		s.logger.Warn("failed to delete payment evidence",
			slog.String("registration_id", reg.ID.String()),
			slog.String("key", *reg.ScreenshotPath),
			slog.Any("error", err),
		)
	}
}
