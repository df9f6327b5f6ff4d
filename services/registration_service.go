package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/repositories"
	"github.com/google/uuid"
)

const registrationListTimeout = 10 * time.Second

// RegistrationService — публичные чтения: регистрант смотрит статус своей
// заявки, зрители — список турниров. Все списки с ограниченным таймаутом:
// по истечении пользователь получает явное предложение повторить.
type RegistrationService struct {
	registrationRepo repositories.RegistrationRepository
	tournamentRepo   repositories.TournamentRepository
}

func NewRegistrationService(
	registrationRepo repositories.RegistrationRepository,
	tournamentRepo repositories.TournamentRepository,
) *RegistrationService {
	return &RegistrationService{
		registrationRepo: registrationRepo,
		tournamentRepo:   tournamentRepo,
	}
}

func (s *RegistrationService) GetByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	reg, err := s.registrationRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrRegistrationNotFound) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to load registration: %w", err)
	}
	return reg, nil
}

// ListByTournament возвращает заявки турнира, новые первыми. Используется и
// лидербордом (только approved), и страницей турнира.
func (s *RegistrationService) ListByTournament(ctx context.Context, tournamentID uuid.UUID, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	if statusFilter != nil && !statusFilter.Valid() {
		return nil, ErrInvalidStatusFilter
	}

	ctx, cancel := context.WithTimeout(ctx, registrationListTimeout)
	defer cancel()

	regs, err := s.registrationRepo.ListByTournament(ctx, tournamentID, statusFilter, false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRequestTimedOut
		}
		return nil, fmt.Errorf("failed to list registrations: %w", err)
	}
	return regs, nil
}

func (s *RegistrationService) GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	t, err := s.tournamentRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repositories.ErrTournamentNotFound) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to load tournament: %w", err)
	}
	return t, nil
}

func (s *RegistrationService) ListTournaments(ctx context.Context) ([]*models.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, registrationListTimeout)
	defer cancel()

	tournaments, err := s.tournamentRepo.List(ctx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrRequestTimedOut
		}
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	return tournaments, nil
}
