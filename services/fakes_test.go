package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/repositories"
	"github.com/Dosada05/tournament-registrations/storage"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memoryRegistrationRepo struct {
	mu   sync.Mutex
	regs map[uuid.UUID]*models.Registration

	// failUpdatePayment возвращается следующим вызовом UpdatePayment;
	// persistBeforeFail имитирует "запись прошла, ответ потерялся".
	failUpdatePayment error
	persistBeforeFail bool

	updatePaymentCalls int
}

func newMemoryRegistrationRepo() *memoryRegistrationRepo {
	return &memoryRegistrationRepo{regs: make(map[uuid.UUID]*models.Registration)}
}

func copyRegistration(reg *models.Registration) *models.Registration {
	c := *reg
	if reg.TxID != nil {
		tx := *reg.TxID
		c.TxID = &tx
	}
	if reg.ScreenshotPath != nil {
		p := *reg.ScreenshotPath
		c.ScreenshotPath = &p
	}
	c.Tournament = nil
	return &c
}

func (r *memoryRegistrationRepo) Create(ctx context.Context, reg *models.Registration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg.ID = uuid.New()
	reg.Status = models.StatusPending
	reg.CreatedAt = time.Now()
	reg.UpdatedAt = reg.CreatedAt
	r.regs[reg.ID] = copyRegistration(reg)
	return nil
}

func (r *memoryRegistrationRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[id]
	if !ok {
		return nil, repositories.ErrRegistrationNotFound
	}
	return copyRegistration(reg), nil
}

func (r *memoryRegistrationRepo) list(filter func(*models.Registration) bool) []*models.Registration {
	out := make([]*models.Registration, 0)
	for _, reg := range r.regs {
		if filter == nil || filter(reg) {
			out = append(out, copyRegistration(reg))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *memoryRegistrationRepo) ListByTournament(ctx context.Context, tournamentID uuid.UUID, statusFilter *models.RegistrationStatus, includeNested bool) ([]*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list(func(reg *models.Registration) bool {
		if reg.TournamentID != tournamentID {
			return false
		}
		return statusFilter == nil || reg.Status == *statusFilter
	}), nil
}

func (r *memoryRegistrationRepo) ListByStatus(ctx context.Context, statusFilter *models.RegistrationStatus) ([]*models.Registration, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.list(func(reg *models.Registration) bool {
		return statusFilter == nil || reg.Status == *statusFilter
	}), nil
}

func (r *memoryRegistrationRepo) UpdatePayment(ctx context.Context, id uuid.UUID, txID, screenshotPath string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.updatePaymentCalls++

	apply := func() error {
		reg, ok := r.regs[id]
		if !ok {
			return repositories.ErrRegistrationNotFound
		}
		switch {
		case reg.TxID == nil && reg.ScreenshotPath == nil:
			reg.TxID = &txID
			reg.ScreenshotPath = &screenshotPath
			reg.UpdatedAt = time.Now()
			return nil
		case *reg.TxID == txID && *reg.ScreenshotPath == screenshotPath:
			return nil // идентичный повтор — no-op успех
		default:
			return repositories.ErrPaymentConflict
		}
	}

	if r.failUpdatePayment != nil {
		err := r.failUpdatePayment
		r.failUpdatePayment = nil
		if r.persistBeforeFail {
			if applyErr := apply(); applyErr != nil {
				return applyErr
			}
		}
		return err
	}
	return apply()
}

func (r *memoryRegistrationRepo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RegistrationStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	reg, ok := r.regs[id]
	if !ok {
		return repositories.ErrRegistrationNotFound
	}
	if reg.Status == models.StatusPending {
		reg.Status = status
		reg.UpdatedAt = time.Now()
		return nil
	}
	if reg.Status == status {
		return repositories.ErrStatusAlreadySet
	}
	return repositories.ErrStatusConflict
}

func (r *memoryRegistrationRepo) Delete(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.regs[id]; !ok {
		return repositories.ErrRegistrationNotFound
	}
	delete(r.regs, id)
	return nil
}

type memoryTournamentRepo struct {
	mu          sync.Mutex
	tournaments map[uuid.UUID]*models.Tournament
}

func newMemoryTournamentRepo() *memoryTournamentRepo {
	return &memoryTournamentRepo{tournaments: make(map[uuid.UUID]*models.Tournament)}
}

func (r *memoryTournamentRepo) add(t *models.Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tournaments[t.ID] = t
}

func (r *memoryTournamentRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tournaments[id]
	if !ok {
		return nil, repositories.ErrTournamentNotFound
	}
	c := *t
	return &c, nil
}

func (r *memoryTournamentRepo) List(ctx context.Context) ([]*models.Tournament, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.Tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		c := *t
		out = append(out, &c)
	}
	return out, nil
}

func openTournament() *models.Tournament {
	now := time.Now()
	return &models.Tournament{
		ID:         uuid.New(),
		Title:      "Summer Cup",
		Game:       "pubg-mobile",
		EntryFee:   500,
		Status:     models.TournamentRegistration,
		RegOpensAt: now.Add(-time.Hour),
		RegEndsAt:  now.Add(time.Hour),
		CreatedAt:  now.Add(-24 * time.Hour),
	}
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []StatusNotification
}

func (n *recordingNotifier) Notify(ctx context.Context, notification StatusNotification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// waitFor опрашивает условие до дедлайна: фоновые оповещения и доставка
// по шине асинхронны.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func validInput() RegistrationInput {
	return RegistrationInput{
		TeamName: "Night Owls",
		TeamMembers: []models.TeamMember{
			{Name: "Aidar", Handle: "owl_one"},
			{Name: "Miras", Handle: "owl_two"},
		},
		ContactInfo: models.ContactInfo{
			FullName:  "Aidar Seitkali",
			Email:     "aidar@example.com",
			Phone:     "+77010000000",
			InGameID:  "owl_one#77",
			BirthDate: "2001-03-14",
		},
		GameDetails: models.GameDetails{
			Platform:  "mobile",
			InGameUID: "518203941",
			Device:    "iPhone 13",
			Region:    "KZ",
		},
		Preferences: models.TournamentPreferences{
			Format:       "squad",
			Mode:         "tpp",
			PlayedBefore: true,
		},
	}
}

// slowUploader блокирует Upload, пока тест не разрешит продолжить.
type slowUploader struct {
	*storage.MemoryUploader
	proceed chan struct{}
	started chan string
}

func newSlowUploader() *slowUploader {
	return &slowUploader{
		MemoryUploader: storage.NewMemoryUploader(""),
		proceed:        make(chan struct{}),
		started:        make(chan string, 4),
	}
}

func (u *slowUploader) Upload(ctx context.Context, key, contentType, scopeToken string, reader io.Reader) (*storage.UploadResult, error) {
	u.started <- key
	<-u.proceed
	return u.MemoryUploader.Upload(ctx, key, contentType, scopeToken, reader)
}

// duplicateUploader всегда отвечает занятым ключом.
type duplicateUploader struct {
	*storage.MemoryUploader
}

func (u *duplicateUploader) Upload(ctx context.Context, key, contentType, scopeToken string, reader io.Reader) (*storage.UploadResult, error) {
	return nil, storage.ErrDuplicateKey
}

// blockingPaymentRepo держит UpdatePayment открытым, пока тест не отпустит.
type blockingPaymentRepo struct {
	*memoryRegistrationRepo
	entered chan struct{}
	release chan struct{}
}

func (r *blockingPaymentRepo) UpdatePayment(ctx context.Context, id uuid.UUID, txID, screenshotPath string) error {
	r.entered <- struct{}{}
	<-r.release
	return r.memoryRegistrationRepo.UpdatePayment(ctx, id, txID, screenshotPath)
}
