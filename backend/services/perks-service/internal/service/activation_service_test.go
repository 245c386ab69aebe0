package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"chargeperks/backend/services/perks-service/internal/models"
	redisstore "chargeperks/backend/services/perks-service/internal/redis"
	"chargeperks/backend/services/perks-service/internal/repository"
)

type fakeSessionStore struct {
	mu          sync.Mutex
	sessions    map[string]*models.ExclusiveSession
	expireFlips int
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{sessions: make(map[string]*models.ExclusiveSession)}
}

func (f *fakeSessionStore) activeFor(driverID int64) *models.ExclusiveSession {
	var newest *models.ExclusiveSession
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.Status == models.SessionStatusActive {
			if newest == nil || s.ActivatedAt.After(newest.ActivatedAt) {
				newest = s
			}
		}
	}
	return newest
}

func (f *fakeSessionStore) CreateIfNoneActive(ctx context.Context, session *models.ExclusiveSession) (*models.ExclusiveSession, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if existing := f.activeFor(session.DriverID); existing != nil {
		if existing.ExpiresAt.After(session.ActivatedAt) {
			copied := *existing
			return &copied, false, nil
		}
		existing.Status = models.SessionStatusExpired
		f.expireFlips++
	}

	stored := *session
	f.sessions[stored.ID] = &stored
	copied := stored
	return &copied, true, nil
}

func (f *fakeSessionStore) GetActive(ctx context.Context, driverID int64, includeExpired bool, now time.Time) (*models.ExclusiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session := f.activeFor(driverID)
	if session == nil {
		return nil, nil
	}
	if !session.ExpiresAt.After(now) {
		session.Status = models.SessionStatusExpired
		f.expireFlips++
		if includeExpired {
			copied := *session
			return &copied, nil
		}
		return nil, nil
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) GetByID(ctx context.Context, id string) (*models.ExclusiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) Transition(ctx context.Context, sessionID, fromStatus, toStatus string) (*models.ExclusiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	if session.Status != fromStatus {
		return nil, repository.ErrStateConflict
	}
	session.Status = toStatus
	if toStatus == models.SessionStatusExpired {
		f.expireFlips++
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) Complete(ctx context.Context, sessionID string, completedAt time.Time, feedback *string) (*models.ExclusiveSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	session, ok := f.sessions[sessionID]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	if session.Status != models.SessionStatusActive {
		return nil, repository.ErrStateConflict
	}
	session.Status = models.SessionStatusCompleted
	session.CompletedAt = &completedAt
	if feedback != nil {
		session.Feedback = feedback
	}
	copied := *session
	return &copied, nil
}

func (f *fakeSessionStore) activeCount(driverID int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, s := range f.sessions {
		if s.DriverID == driverID && s.Status == models.SessionStatusActive {
			count++
		}
	}
	return count
}

type fakeChargerStore struct {
	chargers map[string]*models.Charger
}

func (f *fakeChargerStore) GetChargerByID(ctx context.Context, id string) (*models.Charger, error) {
	charger, ok := f.chargers[id]
	if !ok {
		return nil, repository.ErrChargerNotFound
	}
	copied := *charger
	return &copied, nil
}

type fakeActiveCache struct {
	mu      sync.Mutex
	saves   int
	deletes int
}

func (f *fakeActiveCache) Save(ctx context.Context, session redisstore.ActiveSession) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	return nil
}

func (f *fakeActiveCache) Delete(ctx context.Context, driverID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	return nil
}

const (
	austinLat = 30.2672
	austinLng = -97.7431
)

func newTestActivationService(store *fakeSessionStore, cache ActiveSessionCache, start time.Time) (*ActivationService, *time.Time) {
	chargers := &fakeChargerStore{chargers: map[string]*models.Charger{
		"charger-1": {ID: "charger-1", MerchantID: "merchant-1", Name: "Downtown DCFC", Lat: austinLat, Lng: austinLng},
	}}
	svc := NewActivationService(store, chargers, cache, ActivationConfig{
		RadiusMeters:    150,
		SessionDuration: 60 * time.Minute,
	}, zap.NewNop())

	current := start
	svc.now = func() time.Time { return current }
	return svc, &current
}

func TestActivateWithinRadius(t *testing.T) {
	store := newFakeSessionStore()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, _ := newTestActivationService(store, nil, start)

	session, resumed, err := svc.Activate(context.Background(), ActivateInput{
		DriverID:  7,
		ChargerID: "charger-1",
		Lat:       austinLat,
		Lng:       austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}
	if resumed {
		t.Fatalf("expected fresh session, got resumed")
	}
	if session.Status != models.SessionStatusActive {
		t.Fatalf("expected active, got %s", session.Status)
	}
	if session.DistanceMeters > 1 {
		t.Fatalf("expected ~0 distance, got %.3f", session.DistanceMeters)
	}
	if !session.ExpiresAt.Equal(session.ActivatedAt.Add(60 * time.Minute)) {
		t.Fatalf("expires_at must equal activated_at + 60m, got %v / %v", session.ActivatedAt, session.ExpiresAt)
	}
	if session.MerchantID != "merchant-1" {
		t.Fatalf("expected merchant backfilled from charger, got %q", session.MerchantID)
	}
}

func TestActivateOutOfRadius(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	// roughly 2km north of the charger
	_, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID:  7,
		ChargerID: "charger-1",
		Lat:       30.2852,
		Lng:       austinLng,
	})
	var radiusErr *OutOfRadiusError
	if !errors.As(err, &radiusErr) {
		t.Fatalf("expected OutOfRadiusError, got %v", err)
	}
	if radiusErr.DistanceMeters < 1996 || radiusErr.DistanceMeters > 2006 {
		t.Fatalf("expected ~2001.5m measured distance, got %.3f", radiusErr.DistanceMeters)
	}
	if radiusErr.RadiusMeters != 150 {
		t.Fatalf("expected required radius 150, got %.0f", radiusErr.RadiusMeters)
	}
	if len(store.sessions) != 0 {
		t.Fatalf("rejected activation must not create a row")
	}
}

func TestActivateValidation(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Now())

	cases := []struct {
		name  string
		input ActivateInput
	}{
		{"missing driver", ActivateInput{ChargerID: "charger-1", Lat: austinLat, Lng: austinLng}},
		{"missing charger", ActivateInput{DriverID: 7, Lat: austinLat, Lng: austinLng}},
		{"bad latitude", ActivateInput{DriverID: 7, ChargerID: "charger-1", Lat: 97, Lng: austinLng}},
		{"bad longitude", ActivateInput{DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: -200}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Activate(context.Background(), tc.input)
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestActivateUnknownCharger(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Now())

	_, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID:  7,
		ChargerID: "nope",
		Lat:       austinLat,
		Lng:       austinLng,
	})
	if !errors.Is(err, repository.ErrChargerNotFound) {
		t.Fatalf("expected ErrChargerNotFound, got %v", err)
	}
}

func TestActivateIdempotentWhileActive(t *testing.T) {
	store := newFakeSessionStore()
	cache := &fakeActiveCache{}
	svc, _ := newTestActivationService(store, cache, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	input := ActivateInput{DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng}
	first, resumed, err := svc.Activate(context.Background(), input)
	if err != nil || resumed {
		t.Fatalf("first activation: resumed=%v err=%v", resumed, err)
	}

	for i := 0; i < 3; i++ {
		again, resumed, err := svc.Activate(context.Background(), input)
		if err != nil {
			t.Fatalf("repeat activation: %v", err)
		}
		if !resumed {
			t.Fatalf("expected resumed on repeat activation")
		}
		if again.ID != first.ID {
			t.Fatalf("expected same session id %s, got %s", first.ID, again.ID)
		}
	}
	if store.activeCount(7) != 1 {
		t.Fatalf("expected exactly one active row, got %d", store.activeCount(7))
	}
}

func TestActivateConcurrentSingleWinner(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	const n = 32
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			session, _, err := svc.Activate(context.Background(), ActivateInput{
				DriverID:  7,
				ChargerID: "charger-1",
				Lat:       austinLat,
				Lng:       austinLng,
			})
			if err != nil {
				t.Errorf("concurrent activate: %v", err)
				return
			}
			ids[i] = session.ID
		}(i)
	}
	wg.Wait()

	if got := store.activeCount(7); got != 1 {
		t.Fatalf("expected exactly one active row after %d concurrent activations, got %d", n, got)
	}
	for i := 1; i < n; i++ {
		if ids[i] != ids[0] {
			t.Fatalf("expected every caller to see the same session id")
		}
	}
}

func TestActivateAfterExpiryStartsFresh(t *testing.T) {
	store := newFakeSessionStore()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, clock := newTestActivationService(store, nil, start)

	input := ActivateInput{DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng}
	first, _, err := svc.Activate(context.Background(), input)
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	*clock = start.Add(61 * time.Minute)
	second, resumed, err := svc.Activate(context.Background(), input)
	if err != nil {
		t.Fatalf("Activate after expiry: %v", err)
	}
	if resumed {
		t.Fatalf("expected a fresh session after expiry")
	}
	if second.ID == first.ID {
		t.Fatalf("expected a new session id")
	}

	stale, err := store.GetByID(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stale.Status != models.SessionStatusExpired {
		t.Fatalf("expected stale session flipped to expired, got %s", stale.Status)
	}
}

func TestCompleteLifecycle(t *testing.T) {
	store := newFakeSessionStore()
	cache := &fakeActiveCache{}
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, clock := newTestActivationService(store, cache, start)

	session, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	*clock = start.Add(10 * time.Minute)
	feedback := "great coffee"
	completed, err := svc.Complete(context.Background(), 7, session.ID, &feedback)
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if completed.Status != models.SessionStatusCompleted {
		t.Fatalf("expected completed, got %s", completed.Status)
	}
	if completed.CompletedAt == nil || !completed.CompletedAt.Equal(start.Add(10*time.Minute)) {
		t.Fatalf("completed_at not stamped")
	}
	if cache.deletes == 0 {
		t.Fatalf("expected cache eviction on complete")
	}

	firstCompletedAt := *completed.CompletedAt
	*clock = start.Add(20 * time.Minute)
	_, err = svc.Complete(context.Background(), 7, session.ID, nil)
	if !errors.Is(err, repository.ErrStateConflict) {
		t.Fatalf("expected state conflict on double complete, got %v", err)
	}
	reread, err := store.GetByID(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if !reread.CompletedAt.Equal(firstCompletedAt) {
		t.Fatalf("double complete must not alter completed_at")
	}
}

func TestCompleteForeignSession(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	session, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	_, err = svc.Complete(context.Background(), 8, session.ID, nil)
	if !errors.Is(err, ErrNotSessionOwner) {
		t.Fatalf("expected ownership error, got %v", err)
	}
}

func TestCompleteExpiredSession(t *testing.T) {
	store := newFakeSessionStore()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, clock := newTestActivationService(store, nil, start)

	session, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	*clock = start.Add(2 * time.Hour)
	_, err = svc.Complete(context.Background(), 7, session.ID, nil)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	reread, _ := store.GetByID(context.Background(), session.ID)
	if reread.Status != models.SessionStatusExpired {
		t.Fatalf("expected lazy flip to expired, got %s", reread.Status)
	}
}

func TestCancel(t *testing.T) {
	store := newFakeSessionStore()
	svc, _ := newTestActivationService(store, nil, time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))

	session, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	canceled, err := svc.Cancel(context.Background(), 7, session.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if canceled.Status != models.SessionStatusCanceled {
		t.Fatalf("expected canceled, got %s", canceled.Status)
	}

	_, err = svc.Cancel(context.Background(), 7, session.ID)
	if !errors.Is(err, repository.ErrStateConflict) {
		t.Fatalf("expected state conflict on double cancel, got %v", err)
	}
}

func TestGetActiveLazyExpiryFlipsOnce(t *testing.T) {
	store := newFakeSessionStore()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, clock := newTestActivationService(store, nil, start)

	if _, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	}); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	*clock = start.Add(61 * time.Minute)
	session, err := svc.GetActive(context.Background(), 7, false)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if session != nil {
		t.Fatalf("expected no active session after expiry, got %s", session.Status)
	}
	if store.expireFlips != 1 {
		t.Fatalf("expected exactly one expire flip, got %d", store.expireFlips)
	}

	// subsequent reads see the terminal state without re-triggering the flip
	if session, err = svc.GetActive(context.Background(), 7, false); err != nil || session != nil {
		t.Fatalf("second read: session=%v err=%v", session, err)
	}
	if store.expireFlips != 1 {
		t.Fatalf("expire side effect fired twice")
	}
}

func TestGetActiveIncludeExpired(t *testing.T) {
	store := newFakeSessionStore()
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	svc, clock := newTestActivationService(store, nil, start)

	created, _, err := svc.Activate(context.Background(), ActivateInput{
		DriverID: 7, ChargerID: "charger-1", Lat: austinLat, Lng: austinLng,
	})
	if err != nil {
		t.Fatalf("Activate: %v", err)
	}

	*clock = start.Add(2 * time.Hour)
	session, err := svc.GetActive(context.Background(), 7, true)
	if err != nil {
		t.Fatalf("GetActive: %v", err)
	}
	if session == nil || session.ID != created.ID {
		t.Fatalf("diagnostics read should return the flipped record")
	}
	if session.Status != models.SessionStatusExpired {
		t.Fatalf("expected expired, got %s", session.Status)
	}
}
