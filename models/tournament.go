package models

import (
	"time"

	"github.com/google/uuid"
)

// TournamentStatus представляет статусы турнира, соответствующие ENUM в БД.
type TournamentStatus string

const (
	TournamentSoon         TournamentStatus = "soon"
	TournamentRegistration TournamentStatus = "registration"
	TournamentActive       TournamentStatus = "active"
	TournamentCompleted    TournamentStatus = "completed"
	TournamentCanceled     TournamentStatus = "canceled"
)

// Tournament представляет турнир. Здесь он нужен только как родительская
// сущность для заявок: проверка существования, заголовок для админских
// списков и комната для realtime-рассылки.
type Tournament struct {
	ID         uuid.UUID        `json:"id" db:"id"`
	Title      string           `json:"title" db:"title"`
	Game       string           `json:"game" db:"game"`
	EntryFee   int              `json:"entry_fee" db:"entry_fee"`
	Status     TournamentStatus `json:"status" db:"status"`
	RegOpensAt time.Time        `json:"reg_opens_at" db:"reg_opens_at"`
	RegEndsAt  time.Time        `json:"reg_ends_at" db:"reg_ends_at"`
	CreatedAt  time.Time        `json:"created_at" db:"created_at"`
}

// RegistrationOpen reports whether the tournament currently accepts checkouts.
func (t *Tournament) RegistrationOpen(now time.Time) bool {
	if t.Status != TournamentRegistration {
		return false
	}
	return !now.Before(t.RegOpensAt) && now.Before(t.RegEndsAt)
}
