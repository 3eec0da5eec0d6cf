package custody

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/levensailor/calndr-go/internal/models"
)

var errFakeStore = errors.New("fake store error")

// Fixed identities shared across the package tests. Alice is the older
// account, so she resolves as guardian-A.
var (
	testFamilyID = uuid.MustParse("00000000-0000-0000-0000-00000000000f")
	testActorID  = uuid.MustParse("00000000-0000-0000-0000-0000000000aa")

	alice = Guardian{ID: uuid.MustParse("11111111-1111-1111-1111-111111111111"), FirstName: "Alice"}
	bob   = Guardian{ID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), FirstName: "Bob"}
)

// fakeDayStore is an in-memory DayStore keyed by (family, date).
type fakeDayStore struct {
	mu   sync.Mutex
	days map[string]models.CustodyDay

	UpsertCount  int
	FailOnUpsert int // fail the Nth upsert; 0 never fails
}

func newFakeDayStore() *fakeDayStore {
	return &fakeDayStore{days: make(map[string]models.CustodyDay)}
}

func storeKey(familyID uuid.UUID, d time.Time) string {
	return familyID.String() + "/" + d.Format("2006-01-02")
}

// seed inserts a row directly, bypassing Upsert accounting.
func (s *fakeDayStore) seed(day models.CustodyDay) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if day.ID == uuid.Nil {
		day.ID = uuid.New()
	}
	day.Date = DateOnly(day.Date)
	s.days[storeKey(day.FamilyID, day.Date)] = day
}

func (s *fakeDayStore) Get(ctx context.Context, familyID uuid.UUID, date time.Time) (*models.CustodyDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[storeKey(familyID, DateOnly(date))]
	if !ok {
		return nil, nil
	}
	return &day, nil
}

func (s *fakeDayStore) GetRange(ctx context.Context, familyID uuid.UUID, start, end time.Time) ([]models.CustodyDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CustodyDay
	for _, day := range s.days {
		if day.FamilyID != familyID {
			continue
		}
		if day.Date.Before(DateOnly(start)) || day.Date.After(DateOnly(end)) {
			continue
		}
		out = append(out, day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeDayStore) All(ctx context.Context, familyID uuid.UUID) ([]models.CustodyDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.CustodyDay
	for _, day := range s.days {
		if day.FamilyID == familyID {
			out = append(out, day)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (s *fakeDayStore) Upsert(ctx context.Context, day *models.CustodyDay) (*models.CustodyDay, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.UpsertCount++
	if s.FailOnUpsert > 0 && s.UpsertCount >= s.FailOnUpsert {
		return nil, errFakeStore
	}

	stored := *day
	stored.Date = DateOnly(day.Date)
	key := storeKey(stored.FamilyID, stored.Date)
	if existing, ok := s.days[key]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		stored.ID = uuid.New()
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = time.Now().UTC()
	s.days[key] = stored

	result := stored
	return &result, nil
}

// get reads a stored row for assertions, failing silently to nil.
func (s *fakeDayStore) get(familyID uuid.UUID, date string) *models.CustodyDay {
	s.mu.Lock()
	defer s.mu.Unlock()
	day, ok := s.days[familyID.String()+"/"+date]
	if !ok {
		return nil
	}
	return &day
}

func (s *fakeDayStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.days)
}

// fakeDirectory is a static GuardianDirectory.
type fakeDirectory struct {
	mu     sync.Mutex
	roster []Guardian
	err    error

	CallCount int
}

func newFakeDirectory(roster ...Guardian) *fakeDirectory {
	return &fakeDirectory{roster: roster}
}

func (d *fakeDirectory) ListGuardians(ctx context.Context, familyID uuid.UUID) ([]Guardian, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCount++
	if d.err != nil {
		return nil, d.err
	}
	return d.roster, nil
}

// fakeNotifier records change events.
type fakeNotifier struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (n *fakeNotifier) CustodyChanged(ctx context.Context, event ChangeEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *fakeNotifier) Events() []ChangeEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]ChangeEvent, len(n.events))
	copy(out, n.events)
	return out
}

// newTestEngine wires an engine over the fakes with a silenced logger.
func newTestEngine(store *fakeDayStore, dir *fakeDirectory, notifier Notifier) *Engine {
	return NewEngine(store, dir, notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// date parses a "2006-01-02" literal. Test fixtures only.
func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }
