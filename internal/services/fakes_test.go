package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/deaconkarim/deacon-insights/internal/analytics"
	"github.com/deaconkarim/deacon-insights/internal/cache"
	"github.com/deaconkarim/deacon-insights/internal/store"
	"github.com/deaconkarim/deacon-insights/internal/textgen"
)

const testOrg = "org-1"

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type fakeRecordStore struct {
	mu         sync.Mutex
	members    []analytics.MemberRecord
	donations  []analytics.DonationRecord
	attendance []analytics.AttendanceRecord
	upcoming   []analytics.EventRecord
	errs       map[string]error
	calls      map[string]int
}

func newFakeRecordStore() *fakeRecordStore {
	return &fakeRecordStore{
		errs:  make(map[string]error),
		calls: make(map[string]int),
	}
}

func (f *fakeRecordStore) fail(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[method] = err
}

func (f *fakeRecordStore) callCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

func (f *fakeRecordStore) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[method]++
	return f.errs[method]
}

func (f *fakeRecordStore) ListMembers(_ context.Context, _ string, filter store.MemberFilter) ([]analytics.MemberRecord, error) {
	if err := f.record("ListMembers"); err != nil {
		return nil, err
	}
	out := make([]analytics.MemberRecord, 0)
	for _, m := range f.members {
		if filter.Status != "" && m.Status != filter.Status {
			continue
		}
		if filter.MemberType != "" && m.MemberType != filter.MemberType {
			continue
		}
		out = append(out, m)
	}
	return out, nil
}

func (f *fakeRecordStore) ListDonations(_ context.Context, _ string, filter store.DonationFilter) ([]analytics.DonationRecord, error) {
	if err := f.record("ListDonations"); err != nil {
		return nil, err
	}
	out := make([]analytics.DonationRecord, 0)
	if filter.DonorIDs != nil && len(filter.DonorIDs) == 0 {
		return out, nil
	}
	for _, d := range f.donations {
		if filter.DonorIDs != nil && !contains(filter.DonorIDs, d.DonorID) {
			continue
		}
		if filter.Since != "" && d.Date < filter.Since {
			continue
		}
		if filter.Until != "" && d.Date > filter.Until {
			continue
		}
		out = append(out, d)
	}
	return out, nil
}

func (f *fakeRecordStore) ListEventAttendance(_ context.Context, _ string, filter store.AttendanceFilter) ([]analytics.AttendanceRecord, error) {
	if err := f.record("ListEventAttendance"); err != nil {
		return nil, err
	}
	out := make([]analytics.AttendanceRecord, 0)
	if filter.MemberIDs != nil && len(filter.MemberIDs) == 0 {
		return out, nil
	}
	for _, a := range f.attendance {
		if filter.MemberIDs != nil && !contains(filter.MemberIDs, a.MemberID) {
			continue
		}
		if !filter.CreatedSince.IsZero() && a.CreatedAt.Before(filter.CreatedSince) {
			continue
		}
		if !filter.EventsFrom.IsZero() && a.Event.StartDate.Before(filter.EventsFrom) {
			continue
		}
		if !filter.EventsBefore.IsZero() && !a.Event.StartDate.Before(filter.EventsBefore) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeRecordStore) ListUpcomingEvents(_ context.Context, _ string, from, until time.Time) ([]analytics.EventRecord, error) {
	if err := f.record("ListUpcomingEvents"); err != nil {
		return nil, err
	}
	out := make([]analytics.EventRecord, 0)
	for _, e := range f.upcoming {
		if e.StartDate.Before(from) || !e.StartDate.Before(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

// fakeGenerator answers prompts through respond; a nil respond reports not configured
type fakeGenerator struct {
	mu      sync.Mutex
	respond func(prompt string) (string, error)
	prompts []string
}

func (g *fakeGenerator) Generate(_ context.Context, req textgen.Request) (string, error) {
	g.mu.Lock()
	g.prompts = append(g.prompts, req.Prompt)
	g.mu.Unlock()

	if g.respond == nil {
		return "", textgen.ErrNotConfigured
	}
	return g.respond(req.Prompt)
}

func (g *fakeGenerator) promptCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

var errUpstream = errors.New("upstream unavailable")

type testHarness struct {
	records    *fakeRecordStore
	generator  *fakeGenerator
	cache      *cache.ResultCache
	monitoring *MonitoringService
	service    *InsightsService
}

func newTestHarness() *testHarness {
	records := newFakeRecordStore()
	generator := &fakeGenerator{}
	monitoring := NewMonitoringService(nil)
	resultCache := cache.NewResultCache(cache.NewMemoryStore(0), cache.Options{
		Now: func() time.Time { return testNow },
	}, nil)

	service := NewInsightsService(
		records,
		resultCache,
		NewNarrator(generator, monitoring, nil),
		monitoring,
		InsightsOptions{
			ProfileURLBase: "https://app.example.org/members/",
			Now:            func() time.Time { return testNow },
		},
		nil,
	)

	return &testHarness{
		records:    records,
		generator:  generator,
		cache:      resultCache,
		monitoring: monitoring,
		service:    service,
	}
}

func member(id, first, last string, status analytics.MemberStatus, memberType analytics.MemberType) analytics.MemberRecord {
	return analytics.MemberRecord{
		ID:             id,
		OrganizationID: testOrg,
		FirstName:      first,
		LastName:       last,
		Status:         status,
		MemberType:     memberType,
		CreatedAt:      time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func attendanceAt(memberID, eventID, title, eventType string, at time.Time) analytics.AttendanceRecord {
	return analytics.AttendanceRecord{
		MemberID:  memberID,
		EventID:   eventID,
		CreatedAt: at,
		Event: analytics.EventRecord{
			ID:        eventID,
			Title:     title,
			EventType: eventType,
			StartDate: at,
			EndDate:   at.Add(time.Hour),
		},
	}
}

// seedQuietCongregation has active adults who have neither given nor attended in 60 days
func seedQuietCongregation(f *fakeRecordStore) {
	f.members = []analytics.MemberRecord{
		member("m1", "Alice", "Smith", analytics.MemberStatusActive, analytics.MemberTypeAdult),
		member("m2", "Bob", "Jones", analytics.MemberStatusActive, analytics.MemberTypeAdult),
		member("m3", "Cara", "Lee", analytics.MemberStatusInactive, analytics.MemberTypeAdult),
		member("m4", "Dan", "Smith", analytics.MemberStatusActive, analytics.MemberTypeChild),
	}
	f.donations = []analytics.DonationRecord{
		{ID: "d1", DonorID: "m1", DonorName: "Alice Smith", Amount: 100, Date: "2023-12-01", PaymentMethod: "card"},
	}
	f.attendance = []analytics.AttendanceRecord{
		attendanceAt("m2", "e1", "Christmas Eve Service", "Worship Service", time.Date(2023, 12, 24, 18, 0, 0, 0, time.UTC)),
	}
}
