package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

var (
	ErrRegistrationNotFound          = errors.New("registration not found")
	ErrRegistrationTournamentInvalid = errors.New("registration tournament conflict or invalid")
	ErrPaymentConflict               = errors.New("payment already recorded with different values")
	ErrStatusConflict                = errors.New("registration status is not pending")
	// ErrStatusAlreadySet: целевой статус уже записан. Исход достигнут, но
	// перехода не было — вызывающая сторона не должна повторять side-effects.
	ErrStatusAlreadySet = errors.New("registration already has the requested status")
)

type RegistrationRepository interface {
	Create(ctx context.Context, reg *models.Registration) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	ListByTournament(ctx context.Context, tournamentID uuid.UUID, statusFilter *models.RegistrationStatus, includeNested bool) ([]*models.Registration, error)
	ListByStatus(ctx context.Context, statusFilter *models.RegistrationStatus) ([]*models.Registration, error)
	UpdatePayment(ctx context.Context, id uuid.UUID, txID, screenshotPath string) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type postgresRegistrationRepository struct {
	db *sql.DB
}

func NewPostgresRegistrationRepository(db *sql.DB) RegistrationRepository {
	return &postgresRegistrationRepository{db: db}
}

const registrationColumns = `
	r.id, r.tournament_id, r.team_name, r.team_members, r.contact_info,
	r.game_details, r.tournament_preferences, r.logo_url, r.status,
	r.tx_id, r.payment_screenshot_path, r.upload_scope_token,
	r.created_at, r.updated_at`

func (r *postgresRegistrationRepository) Create(ctx context.Context, reg *models.Registration) error {
	members, err := json.Marshal(reg.TeamMembers)
	if err != nil {
		return fmt.Errorf("failed to marshal team members: %w", err)
	}
	contact, err := json.Marshal(reg.ContactInfo)
	if err != nil {
		return fmt.Errorf("failed to marshal contact info: %w", err)
	}
	game, err := json.Marshal(reg.GameDetails)
	if err != nil {
		return fmt.Errorf("failed to marshal game details: %w", err)
	}
	prefs, err := json.Marshal(reg.Preferences)
	if err != nil {
		return fmt.Errorf("failed to marshal tournament preferences: %w", err)
	}

	// Платёжные поля намеренно не вставляются: новая заявка их не имеет.
	query := `
		INSERT INTO registrations
			(tournament_id, team_name, team_members, contact_info, game_details,
			 tournament_preferences, logo_url, upload_scope_token)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, status, created_at, updated_at`

	err = r.db.QueryRowContext(ctx, query,
		reg.TournamentID,
		reg.TeamName,
		members,
		contact,
		game,
		prefs,
		reg.LogoURL,
		reg.UploadScopeToken,
	).Scan(&reg.ID, &reg.Status, &reg.CreatedAt, &reg.UpdatedAt)

	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			switch pqErr.Code {
			case "23503": // foreign_key_violation
				if pqErr.Constraint == "registrations_tournament_id_fkey" {
					return ErrRegistrationTournamentInvalid
				}
			}
		}
		return fmt.Errorf("failed to create registration: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) scanRegistration(row rowScanner, reg *models.Registration) error {
	var members, contact, game, prefs []byte

	err := row.Scan(
		&reg.ID,
		&reg.TournamentID,
		&reg.TeamName,
		&members,
		&contact,
		&game,
		&prefs,
		&reg.LogoURL,
		&reg.Status,
		&reg.TxID,
		&reg.ScreenshotPath,
		&reg.UploadScopeToken,
		&reg.CreatedAt,
		&reg.UpdatedAt,
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(members, &reg.TeamMembers); err != nil {
		return fmt.Errorf("failed to unmarshal team members: %w", err)
	}
	if err := json.Unmarshal(contact, &reg.ContactInfo); err != nil {
		return fmt.Errorf("failed to unmarshal contact info: %w", err)
	}
	if err := json.Unmarshal(game, &reg.GameDetails); err != nil {
		return fmt.Errorf("failed to unmarshal game details: %w", err)
	}
	if err := json.Unmarshal(prefs, &reg.Preferences); err != nil {
		return fmt.Errorf("failed to unmarshal tournament preferences: %w", err)
	}
	return nil
}

func (r *postgresRegistrationRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	query := fmt.Sprintf(`SELECT %s FROM registrations r WHERE r.id = $1`, registrationColumns)

	reg := &models.Registration{}
	row := r.db.QueryRowContext(ctx, query, id)
	if err := r.scanRegistration(row, reg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRegistrationNotFound
		}
		return nil, fmt.Errorf("failed to find registration: %w", err)
	}
	return reg, nil
}

func (r *postgresRegistrationRepository) ListByTournament(ctx context.Context, tournamentID uuid.UUID, statusFilter *models.RegistrationStatus, includeNested bool) ([]*models.Registration, error) {
	var queryBuilder strings.Builder
	args := []interface{}{tournamentID}
	argCounter := 2

	queryBuilder.WriteString(fmt.Sprintf(`
		SELECT
			%s
			%s
		FROM registrations r
`, registrationColumns, selectTournamentNestedFieldsSQL(includeNested)))

	if includeNested {
		queryBuilder.WriteString(joinTournamentNestedFieldsSQL())
	}

	queryBuilder.WriteString(" WHERE r.tournament_id = $1")

	if statusFilter != nil {
		queryBuilder.WriteString(fmt.Sprintf(" AND r.status = $%d", argCounter))
		args = append(args, *statusFilter)
		argCounter++
	}
	queryBuilder.WriteString(" ORDER BY r.created_at DESC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations by tournament: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		var t models.Tournament
		var members, contact, game, prefs []byte

		scanDest := []interface{}{
			&reg.ID, &reg.TournamentID, &reg.TeamName, &members, &contact,
			&game, &prefs, &reg.LogoURL, &reg.Status,
			&reg.TxID, &reg.ScreenshotPath, &reg.UploadScopeToken,
			&reg.CreatedAt, &reg.UpdatedAt,
		}
		if includeNested {
			scanDest = append(scanDest, &t.ID, &t.Title, &t.Game, &t.Status)
		}

		if err := rows.Scan(scanDest...); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}

		if err := json.Unmarshal(members, &reg.TeamMembers); err != nil {
			return nil, fmt.Errorf("failed to unmarshal team members: %w", err)
		}
		if err := json.Unmarshal(contact, &reg.ContactInfo); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contact info: %w", err)
		}
		if err := json.Unmarshal(game, &reg.GameDetails); err != nil {
			return nil, fmt.Errorf("failed to unmarshal game details: %w", err)
		}
		if err := json.Unmarshal(prefs, &reg.Preferences); err != nil {
			return nil, fmt.Errorf("failed to unmarshal tournament preferences: %w", err)
		}

		if includeNested && t.ID != uuid.Nil { // Check if tournament data was actually scanned
			reg.Tournament = &t
		}
		registrations = append(registrations, &reg)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

// ListByStatus возвращает заявки по всем турнирам, без join: связанные
// турниры модерационный слой разрешает сам и терпимо относится к
// отсутствующим.
func (r *postgresRegistrationRepository) ListByStatus(ctx context.Context, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	var queryBuilder strings.Builder
	var args []interface{}

	queryBuilder.WriteString(fmt.Sprintf(`SELECT %s FROM registrations r`, registrationColumns))
	if statusFilter != nil {
		queryBuilder.WriteString(" WHERE r.status = $1")
		args = append(args, *statusFilter)
	}
	queryBuilder.WriteString(" ORDER BY r.created_at DESC")

	rows, err := r.db.QueryContext(ctx, queryBuilder.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list registrations by status: %w", err)
	}
	defer rows.Close()

	registrations := make([]*models.Registration, 0)
	for rows.Next() {
		var reg models.Registration
		if err := r.scanRegistration(rows, &reg); err != nil {
			return nil, fmt.Errorf("failed to scan registration row: %w", err)
		}
		registrations = append(registrations, &reg)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registration rows: %w", err)
	}
	return registrations, nil
}

// UpdatePayment записывает оба платёжных поля одним атомарным UPDATE.
// Повторная отправка с теми же значениями — no-op успех; попытка
// перезаписать другими значениями — ErrPaymentConflict.
func (r *postgresRegistrationRepository) UpdatePayment(ctx context.Context, id uuid.UUID, txID, screenshotPath string) error {
	query := `
		UPDATE registrations
		SET tx_id = $2, payment_screenshot_path = $3, updated_at = NOW()
		WHERE id = $1
		  AND (
			(tx_id IS NULL AND payment_screenshot_path IS NULL)
			OR (tx_id = $2 AND payment_screenshot_path = $3)
		  )`

	result, err := r.db.ExecContext(ctx, query, id, txID, screenshotPath)
	if err != nil {
		return fmt.Errorf("failed to update registration payment: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for payment update: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	// Ноль затронутых строк: либо записи нет, либо платёж уже записан
	// с другими значениями. Различаем отдельным чтением.
	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM registrations WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check registration existence: %w", err)
	}
	if !exists {
		return ErrRegistrationNotFound
	}
	return ErrPaymentConflict
}

// UpdateStatus переводит заявку из pending в терминальный статус. Повторный
// перевод в тот же статус — ErrStatusAlreadySet (исход достигнут, перехода
// не было); перевод из одного терминального статуса в другой —
// ErrStatusConflict. Это единственный механизм контроля гонки между двумя
// одновременными модераторскими действиями.
func (r *postgresRegistrationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	query := `
		UPDATE registrations
		SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`

	result, err := r.db.ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("failed to update registration status: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows for status update: %w", err)
	}
	if rowsAffected > 0 {
		return nil
	}

	var current models.RegistrationStatus
	err = r.db.QueryRowContext(ctx,
		`SELECT status FROM registrations WHERE id = $1`, id,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrRegistrationNotFound
		}
		return fmt.Errorf("failed to check registration status: %w", err)
	}
	if current == status {
		return ErrStatusAlreadySet
	}
	return ErrStatusConflict
}

func (r *postgresRegistrationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM registrations WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete registration: %w", err)
	}
	return checkAffectedRows(result, ErrRegistrationNotFound)
}

func selectTournamentNestedFieldsSQL(includeNested bool) string {
	if !includeNested {
		return ""
	}
	return `,
		COALESCE(t.id, '00000000-0000-0000-0000-000000000000'::uuid) as tournament_db_id,
		COALESCE(t.title, '') as tournament_title,
		COALESCE(t.game, '') as tournament_game,
		COALESCE(t.status, 'soon') as tournament_status`
}

func joinTournamentNestedFieldsSQL() string {
	return `
		LEFT JOIN tournaments t ON r.tournament_id = t.id`
}
