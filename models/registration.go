package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// RegistrationStatus представляет статусы заявки, соответствующие ENUM в БД.
type RegistrationStatus string

const (
	StatusPending  RegistrationStatus = "pending"
	StatusApproved RegistrationStatus = "approved"
	StatusRejected RegistrationStatus = "rejected"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type TeamMember struct {
	Name   string `json:"name"`
	Handle string `json:"handle"`
}

type ContactInfo struct {
	FullName  string `json:"full_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	InGameID  string `json:"in_game_id"`
	BirthDate string `json:"birth_date"`
}

type GameDetails struct {
	Platform  string `json:"platform"`
	InGameUID string `json:"in_game_uid"`
	Device    string `json:"device"`
	Region    string `json:"region"`
}

type TournamentPreferences struct {
	Format          string `json:"format"`
	Mode            string `json:"mode"`
	PlayedBefore    bool   `json:"played_before"`
	PriorExperience string `json:"prior_experience,omitempty"`
}

// Registration представляет заявку команды на участие в турнире.
// Платёжные поля (TxID, PaymentScreenshotPath) либо оба пусты, либо оба
// заполнены — это инвариант, который защищает UpdatePayment в репозитории.
type Registration struct {
	ID               uuid.UUID             `json:"id" db:"id"`
	TournamentID     uuid.UUID             `json:"tournament_id" db:"tournament_id"`
	TeamName         string                `json:"team_name" db:"team_name"`
	TeamMembers      []TeamMember          `json:"team_members" db:"team_members"`
	ContactInfo      ContactInfo           `json:"contact_info" db:"contact_info"`
	GameDetails      GameDetails           `json:"game_details" db:"game_details"`
	Preferences      TournamentPreferences `json:"tournament_preferences" db:"tournament_preferences"`
	LogoURL          *string               `json:"logo_url,omitempty" db:"logo_url"`
	Status           RegistrationStatus    `json:"status" db:"status"`
	TxID             *string               `json:"tx_id,omitempty" db:"tx_id"`
	ScreenshotPath   *string               `json:"payment_screenshot_path,omitempty" db:"payment_screenshot_path"`
	UploadScopeToken string                `json:"-" db:"upload_scope_token"`
	CreatedAt        time.Time             `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time             `json:"updated_at" db:"updated_at"`

	// Опциональная связанная сущность (не мапится напрямую)
	Tournament *Tournament `json:"tournament,omitempty" db:"-"`
}

// HasPayment reports whether the payment sub-state is populated.
func (r *Registration) HasPayment() bool {
	return r.TxID != nil && r.ScreenshotPath != nil
}

// ValidationErrors maps a field name to a human-readable problem.
type ValidationErrors map[string]string

// Validate checks the fields required at form submission. It never touches
// the payment sub-state, which does not exist yet at create time.
func (r *Registration) Validate() ValidationErrors {
	errs := make(ValidationErrors)

	if r.TournamentID == uuid.Nil {
		errs["tournament_id"] = "tournament reference is required"
	}
	if strings.TrimSpace(r.TeamName) == "" {
		errs["team_name"] = "team name is required"
	}
	if len(r.TeamMembers) == 0 {
		errs["team_members"] = "at least one team member is required"
	}
	for _, m := range r.TeamMembers {
		if strings.TrimSpace(m.Name) == "" || strings.TrimSpace(m.Handle) == "" {
			errs["team_members"] = "every team member needs a name and a handle"
			break
		}
	}
	if strings.TrimSpace(r.ContactInfo.FullName) == "" {
		errs["contact_info.full_name"] = "full name is required"
	}
	if strings.TrimSpace(r.ContactInfo.Email) == "" || !strings.Contains(r.ContactInfo.Email, "@") {
		errs["contact_info.email"] = "a valid email is required"
	}
	if strings.TrimSpace(r.ContactInfo.Phone) == "" {
		errs["contact_info.phone"] = "phone is required"
	}
	if strings.TrimSpace(r.GameDetails.InGameUID) == "" {
		errs["game_details.in_game_uid"] = "in-game uid is required"
	}
	if strings.TrimSpace(r.GameDetails.Platform) == "" {
		errs["game_details.platform"] = "platform is required"
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}
