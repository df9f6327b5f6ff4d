package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/google/uuid"
)

var ErrTournamentNotFound = errors.New("tournament not found")

// TournamentRepository — read-only: турниры создаются и редактируются
// внешней админкой, этому сервису нужны только проверки существования,
// заголовки для списков и публичный просмотр.
type TournamentRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Tournament, error)
	List(ctx context.Context) ([]*models.Tournament, error)
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, title, game, entry_fee, status, reg_opens_at, reg_ends_at, created_at`

func (r *postgresTournamentRepository) scanTournament(row rowScanner, t *models.Tournament) error {
	return row.Scan(
		&t.ID,
		&t.Title,
		&t.Game,
		&t.EntryFee,
		&t.Status,
		&t.RegOpensAt,
		&t.RegEndsAt,
		&t.CreatedAt,
	)
}

func (r *postgresTournamentRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	query := fmt.Sprintf(`SELECT %s FROM tournaments WHERE id = $1`, tournamentColumns)

	t := &models.Tournament{}
	row := r.db.QueryRowContext(ctx, query, id)
	if err := r.scanTournament(row, t); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to find tournament: %w", err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) List(ctx context.Context) ([]*models.Tournament, error) {
	query := fmt.Sprintf(`SELECT %s FROM tournaments ORDER BY reg_opens_at DESC`, tournamentColumns)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list tournaments: %w", err)
	}
	defer rows.Close()

	tournaments := make([]*models.Tournament, 0)
	for rows.Next() {
		var t models.Tournament
		if err := r.scanTournament(rows, &t); err != nil {
			return nil, fmt.Errorf("failed to scan tournament row: %w", err)
		}
		tournaments = append(tournaments, &t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tournament rows: %w", err)
	}
	return tournaments, nil
}
