package services

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/tournament-registrations/models"
	"github.com/Dosada05/tournament-registrations/realtime"
	"github.com/Dosada05/tournament-registrations/storage"
	"github.com/google/uuid"
)

type checkoutFixture struct {
	svc        *CheckoutService
	regRepo    *memoryRegistrationRepo
	tourRepo   *memoryTournamentRepo
	uploader   *storage.MemoryUploader
	notifier   *recordingNotifier
	bus        *realtime.Bus
	tournament *models.Tournament
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()

	f := &checkoutFixture{
		regRepo:  newMemoryRegistrationRepo(),
		tourRepo: newMemoryTournamentRepo(),
		uploader: storage.NewMemoryUploader(""),
		notifier: &recordingNotifier{},
		bus:      realtime.NewBus(),
	}
	f.tournament = openTournament()
	f.tourRepo.add(f.tournament)
	f.svc = NewCheckoutService(f.regRepo, f.tourRepo, f.uploader, f.notifier, f.bus, testLogger(), time.Hour)
	return f
}

// submit доводит свежую сессию до этапа awaiting_evidence.
func (f *checkoutFixture) submit(t *testing.T) *CheckoutView {
	t.Helper()

	ctx := context.Background()
	view, err := f.svc.Start(ctx, f.tournament.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	view, err = f.svc.Submit(ctx, view.SessionID, validInput())
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return view
}

// uploadEvidence доводит сессию до готового подтверждения оплаты.
func (f *checkoutFixture) uploadEvidence(t *testing.T, sessionID uuid.UUID) *CheckoutView {
	t.Helper()

	view, err := f.svc.UploadEvidence(context.Background(), sessionID, "receipt.png", "image/png", strings.NewReader("png-bytes"))
	if err != nil {
		t.Fatalf("UploadEvidence: %v", err)
	}
	return view
}

func TestCheckoutHappyPath(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	view := f.submit(t)
	if view.Stage != StageAwaitingEvidence {
		t.Fatalf("stage after submit = %q, want %q", view.Stage, StageAwaitingEvidence)
	}
	if view.RegistrationID == uuid.Nil {
		t.Fatal("submit did not record a registration id")
	}

	// Свежая заявка: pending и без платёжных полей.
	reg, err := f.regRepo.FindByID(ctx, view.RegistrationID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if reg.Status != models.StatusPending {
		t.Fatalf("new registration status = %q, want pending", reg.Status)
	}
	if reg.HasPayment() || reg.TxID != nil || reg.ScreenshotPath != nil {
		t.Fatal("new registration must not carry payment fields")
	}
	if reg.UploadScopeToken == "" {
		t.Fatal("upload scope token was not persisted")
	}

	view = f.uploadEvidence(t, view.SessionID)
	if !view.EvidenceReady || view.EvidenceKey == "" {
		t.Fatalf("evidence not ready after upload: %+v", view)
	}
	if !strings.HasPrefix(view.EvidenceKey, f.tournament.ID.String()+"/") {
		t.Fatalf("evidence key %q is not scoped to the tournament", view.EvidenceKey)
	}
	if !strings.HasSuffix(view.EvidenceKey, "_receipt.png") {
		t.Fatalf("evidence key %q does not end with the sanitized file name", view.EvidenceKey)
	}
	if token, ok := f.uploader.ScopeToken(view.EvidenceKey); !ok || token != reg.UploadScopeToken {
		t.Fatalf("blob scope token = %q, want the registration's token %q", token, reg.UploadScopeToken)
	}

	view, err = f.svc.Confirm(ctx, view.SessionID, "UPI123")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	if view.Stage != StageDone {
		t.Fatalf("stage after confirm = %q, want %q", view.Stage, StageDone)
	}

	// Платёжная пара записана атомарно и целиком.
	reg, err = f.regRepo.FindByID(ctx, view.RegistrationID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if !reg.HasPayment() {
		t.Fatal("payment fields missing after confirm")
	}
	if *reg.TxID != "UPI123" {
		t.Fatalf("tx id = %q, want UPI123", *reg.TxID)
	}
	if *reg.ScreenshotPath != view.EvidenceKey {
		t.Fatalf("screenshot path = %q, want %q", *reg.ScreenshotPath, view.EvidenceKey)
	}

	if !waitFor(t, time.Second, func() bool { return f.notifier.count() == 1 }) {
		t.Fatalf("notifications sent = %d, want 1", f.notifier.count())
	}
}

func TestStartUnknownTournament(t *testing.T) {
	f := newCheckoutFixture(t)

	_, err := f.svc.Start(context.Background(), uuid.New())
	if !errors.Is(err, ErrTournamentNotFound) {
		t.Fatalf("Start unknown tournament: err = %v, want ErrTournamentNotFound", err)
	}
}

func TestStartRegistrationClosed(t *testing.T) {
	f := newCheckoutFixture(t)

	closed := openTournament()
	closed.RegEndsAt = time.Now().Add(-time.Minute)
	f.tourRepo.add(closed)

	_, err := f.svc.Start(context.Background(), closed.ID)
	if !errors.Is(err, ErrRegistrationNotOpen) {
		t.Fatalf("Start closed tournament: err = %v, want ErrRegistrationNotOpen", err)
	}
}

func TestSubmitValidationKeepsSessionRetryable(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	view, err := f.svc.Start(ctx, f.tournament.ID)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	bad := validInput()
	bad.TeamName = "  "
	bad.ContactInfo.Email = "not-an-email"

	_, err = f.svc.Submit(ctx, view.SessionID, bad)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Submit invalid input: err = %v, want *ValidationError", err)
	}
	if !errors.Is(err, ErrValidationFailed) {
		t.Fatal("ValidationError must unwrap to ErrValidationFailed")
	}
	if _, ok := verr.Fields["team_name"]; !ok {
		t.Fatalf("validation fields %v miss team_name", verr.Fields)
	}
	if regs, _ := f.regRepo.ListByStatus(ctx, nil); len(regs) != 0 {
		t.Fatalf("invalid submit must not create records, got %d", len(regs))
	}

	// Сессия осталась на этапе формы, повтор с исправленными данными проходит.
	current, err := f.svc.Get(view.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Stage != StageFilling {
		t.Fatalf("stage after failed validation = %q, want %q", current.Stage, StageFilling)
	}
	if _, err := f.svc.Submit(ctx, view.SessionID, validInput()); err != nil {
		t.Fatalf("retry Submit: %v", err)
	}
}

func TestSubmitTwiceRejected(t *testing.T) {
	f := newCheckoutFixture(t)

	view := f.submit(t)
	_, err := f.svc.Submit(context.Background(), view.SessionID, validInput())
	if !errors.Is(err, ErrCheckoutStageInvalid) {
		t.Fatalf("second Submit: err = %v, want ErrCheckoutStageInvalid", err)
	}
}

func TestConfirmRequiresTxReference(t *testing.T) {
	f := newCheckoutFixture(t)

	view := f.submit(t)
	f.uploadEvidence(t, view.SessionID)

	_, err := f.svc.Confirm(context.Background(), view.SessionID, "")
	if !errors.Is(err, ErrTxReferenceRequired) {
		t.Fatalf("Confirm with empty tx: err = %v, want ErrTxReferenceRequired", err)
	}
}

func TestConfirmRequiresEvidence(t *testing.T) {
	f := newCheckoutFixture(t)

	view := f.submit(t)
	_, err := f.svc.Confirm(context.Background(), view.SessionID, "UPI123")
	if !errors.Is(err, ErrEvidenceNotReady) {
		t.Fatalf("Confirm without evidence: err = %v, want ErrEvidenceNotReady", err)
	}
}

// Сетевая ошибка после того, как запись уже прошла: повтор с тем же ключом
// должен пройти как no-op, без второго blob-а и без конфликта.
func TestConfirmRetryAfterLostResponse(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	view := f.submit(t)
	view = f.uploadEvidence(t, view.SessionID)

	f.regRepo.failUpdatePayment = errors.New("connection reset")
	f.regRepo.persistBeforeFail = true

	if _, err := f.svc.Confirm(ctx, view.SessionID, "UPI123"); err == nil {
		t.Fatal("Confirm should surface the transport error")
	}

	// Сессия не считается проваленной: этап подтверждения, ключ сохранён.
	current, err := f.svc.Get(view.SessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if current.Stage != StageAwaitingConfirmation {
		t.Fatalf("stage after transient failure = %q, want %q", current.Stage, StageAwaitingConfirmation)
	}
	if current.EvidenceKey != view.EvidenceKey {
		t.Fatalf("evidence key changed across retry: %q -> %q", view.EvidenceKey, current.EvidenceKey)
	}

	done, err := f.svc.Confirm(ctx, view.SessionID, "UPI123")
	if err != nil {
		t.Fatalf("retry Confirm: %v", err)
	}
	if done.Stage != StageDone {
		t.Fatalf("stage after retry = %q, want %q", done.Stage, StageDone)
	}

	if f.uploader.Len() != 1 {
		t.Fatalf("blob count = %d, want 1 (retry must not re-upload)", f.uploader.Len())
	}
	reg, _ := f.regRepo.FindByID(ctx, view.RegistrationID)
	if *reg.TxID != "UPI123" || *reg.ScreenshotPath != view.EvidenceKey {
		t.Fatalf("payment pair after retry = (%v, %v)", reg.TxID, reg.ScreenshotPath)
	}
	if f.regRepo.updatePaymentCalls != 2 {
		t.Fatalf("UpdatePayment calls = %d, want 2", f.regRepo.updatePaymentCalls)
	}
}

func TestConfirmAgainstDeletedRegistration(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	view := f.submit(t)
	view = f.uploadEvidence(t, view.SessionID)

	if err := f.regRepo.Delete(ctx, view.RegistrationID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	_, err := f.svc.Confirm(ctx, view.SessionID, "UPI123")
	if !errors.Is(err, ErrRegistrationNotFound) {
		t.Fatalf("Confirm on deleted registration: err = %v, want ErrRegistrationNotFound", err)
	}

	current, _ := f.svc.Get(view.SessionID)
	if current.Stage != StageFailed || current.FailedStage != StageAwaitingConfirmation {
		t.Fatalf("session after hard failure = (%q, %q), want (failed, awaiting_confirmation)", current.Stage, current.FailedStage)
	}
}

func TestUploadDuplicateKeySurfaced(t *testing.T) {
	f := newCheckoutFixture(t)
	f.svc = NewCheckoutService(
		f.regRepo, f.tourRepo,
		&duplicateUploader{MemoryUploader: f.uploader},
		f.notifier, f.bus, testLogger(), time.Hour,
	)

	view := f.submit(t)
	_, err := f.svc.UploadEvidence(context.Background(), view.SessionID, "receipt.png", "image/png", strings.NewReader("x"))
	if !errors.Is(err, ErrEvidenceDuplicate) {
		t.Fatalf("upload on taken key: err = %v, want ErrEvidenceDuplicate", err)
	}
}

// Каждая загрузка, даже того же самого файла, получает свой ключ: подтверждён
// будет только последний.
func TestSequentialReuploadsGetDistinctKeys(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	view := f.submit(t)
	first := f.uploadEvidence(t, view.SessionID)
	second := f.uploadEvidence(t, view.SessionID)

	if first.EvidenceKey == second.EvidenceKey {
		t.Fatalf("re-upload reused key %q", first.EvidenceKey)
	}
	if f.uploader.Len() != 2 {
		t.Fatalf("blob count = %d, want 2", f.uploader.Len())
	}

	done, err := f.svc.Confirm(ctx, view.SessionID, "UPI123")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	reg, _ := f.regRepo.FindByID(ctx, done.RegistrationID)
	if *reg.ScreenshotPath != second.EvidenceKey {
		t.Fatalf("confirmed key = %q, want the latest upload %q", *reg.ScreenshotPath, second.EvidenceKey)
	}
}

// Выбор нового файла до завершения текущей загрузки: первая загрузка
// отбрасывается, её blob зачищается, в заявку попадает только второй ключ.
func TestUploadSupersededByNewerSelection(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	slow := newSlowUploader()
	f.svc = NewCheckoutService(f.regRepo, f.tourRepo, slow, f.notifier, f.bus, testLogger(), time.Hour)

	view := f.submit(t)

	type uploadResult struct {
		view *CheckoutView
		err  error
	}
	firstDone := make(chan uploadResult, 1)
	secondDone := make(chan uploadResult, 1)

	go func() {
		v, err := f.svc.UploadEvidence(ctx, view.SessionID, "old.png", "image/png", strings.NewReader("old"))
		firstDone <- uploadResult{v, err}
	}()
	<-slow.started

	go func() {
		v, err := f.svc.UploadEvidence(ctx, view.SessionID, "new.png", "image/png", strings.NewReader("new"))
		secondDone <- uploadResult{v, err}
	}()
	<-slow.started

	close(slow.proceed)

	first := <-firstDone
	second := <-secondDone

	if !errors.Is(first.err, ErrEvidenceSuperseded) {
		t.Fatalf("stale upload: err = %v, want ErrEvidenceSuperseded", first.err)
	}
	if second.err != nil {
		t.Fatalf("latest upload: %v", second.err)
	}
	if !strings.HasSuffix(second.view.EvidenceKey, "_new.png") {
		t.Fatalf("winning key = %q, want the newer file", second.view.EvidenceKey)
	}

	// Осиротевший blob первой загрузки зачищается в фоне.
	if !waitFor(t, time.Second, func() bool { return slow.MemoryUploader.Len() == 1 }) {
		t.Fatalf("blob count = %d, want 1 after orphan cleanup", slow.MemoryUploader.Len())
	}
	if exists, _ := slow.MemoryUploader.Exists(ctx, second.view.EvidenceKey); !exists {
		t.Fatal("winning blob is missing from the store")
	}

	done, err := f.svc.Confirm(ctx, view.SessionID, "UPI123")
	if err != nil {
		t.Fatalf("Confirm: %v", err)
	}
	reg, _ := f.regRepo.FindByID(ctx, done.RegistrationID)
	if *reg.ScreenshotPath != second.view.EvidenceKey {
		t.Fatalf("confirmed key = %q, want %q", *reg.ScreenshotPath, second.view.EvidenceKey)
	}
}

func TestConfirmSingleFlight(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	blocking := &blockingPaymentRepo{
		memoryRegistrationRepo: f.regRepo,
		entered:                make(chan struct{}, 1),
		release:                make(chan struct{}),
	}
	f.svc = NewCheckoutService(blocking, f.tourRepo, f.uploader, f.notifier, f.bus, testLogger(), time.Hour)

	view := f.submit(t)
	f.uploadEvidence(t, view.SessionID)

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.svc.Confirm(ctx, view.SessionID, "UPI123")
		firstDone <- err
	}()
	<-blocking.entered

	// Пока первый Confirm в полёте, и повтор, и смена файла отклоняются.
	if _, err := f.svc.Confirm(ctx, view.SessionID, "UPI123"); !errors.Is(err, ErrConfirmationInFlight) {
		t.Fatalf("concurrent Confirm: err = %v, want ErrConfirmationInFlight", err)
	}
	if _, err := f.svc.UploadEvidence(ctx, view.SessionID, "late.png", "image/png", strings.NewReader("x")); !errors.Is(err, ErrConfirmationInFlight) {
		t.Fatalf("upload during confirm: err = %v, want ErrConfirmationInFlight", err)
	}

	close(blocking.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first Confirm: %v", err)
	}
	if f.regRepo.updatePaymentCalls != 1 {
		t.Fatalf("UpdatePayment calls = %d, want 1", f.regRepo.updatePaymentCalls)
	}
}

func TestCheckoutEventsPublished(t *testing.T) {
	f := newCheckoutFixture(t)
	ctx := context.Background()

	var (
		events []realtime.Event
		seen   = make(chan realtime.Event, 8)
	)
	sub := f.bus.Subscribe(realtime.TableRegistrations, nil, func(e realtime.Event) { seen <- e })
	defer f.bus.Unsubscribe(sub)

	view := f.submit(t)
	f.uploadEvidence(t, view.SessionID)
	if _, err := f.svc.Confirm(ctx, view.SessionID, "UPI123"); err != nil {
		t.Fatalf("Confirm: %v", err)
	}

	if !waitFor(t, time.Second, func() bool {
		for {
			select {
			case e := <-seen:
				events = append(events, e)
			default:
				return len(events) >= 2
			}
		}
	}) {
		t.Fatalf("got %d events, want insert then update", len(events))
	}
	if events[0].Type != realtime.EventInsert || events[1].Type != realtime.EventUpdate {
		t.Fatalf("event types = %q, %q; want insert, update", events[0].Type, events[1].Type)
	}
	if events[0].RegistrationID != view.RegistrationID || events[0].TournamentID != f.tournament.ID {
		t.Fatalf("insert event ids = %+v", events[0])
	}
}

func TestSweepExpiredSessions(t *testing.T) {
	f := newCheckoutFixture(t)

	view := f.submit(t)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if removed := f.svc.SweepExpired(); removed != 1 {
		t.Fatalf("SweepExpired removed %d, want 1", removed)
	}
	if _, err := f.svc.Get(view.SessionID); !errors.Is(err, ErrCheckoutSessionNotFound) {
		t.Fatalf("Get swept session: err = %v, want ErrCheckoutSessionNotFound", err)
	}
}

func TestGetUnknownSession(t *testing.T) {
	f := newCheckoutFixture(t)

	if _, err := f.svc.Get(uuid.New()); !errors.Is(err, ErrCheckoutSessionNotFound) {
		t.Fatalf("Get unknown session: err = %v, want ErrCheckoutSessionNotFound", err)
	}
}
