package db

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/hive-services/backend/internal/models"
)

// MemoryStore is an indexed in-process Repository. It backs tests and runs
// when no DATABASE_URL is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	requests map[string]models.ServiceRequest
	events   map[string][]models.RequestEvent
	invoices map[string]models.Invoice
	photos   map[string]models.PhotoDocumentation
	managers map[string]models.Manager
	teams    map[string]models.Team

	writers keyedMutex
}

var _ Repository = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		requests: map[string]models.ServiceRequest{},
		events:   map[string][]models.RequestEvent{},
		invoices: map[string]models.Invoice{},
		photos:   map[string]models.PhotoDocumentation{},
		managers: map[string]models.Manager{},
		teams:    map[string]models.Team{},
	}
}

func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

func (s *MemoryStore) Close() {}

func (s *MemoryStore) CreateRequest(ctx context.Context, r models.ServiceRequest, ev models.RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return ErrExists
	}
	stored := r.Clone()
	stored.Invoice = nil
	stored.PhotoDocumentation = nil
	s.requests[r.ID] = stored
	s.events[r.ID] = append(s.events[r.ID], ev)
	return nil
}

func (s *MemoryStore) GetRequest(ctx context.Context, id string) (models.ServiceRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return models.ServiceRequest{}, ErrNotFound
	}
	return s.attachLocked(r), nil
}

func (s *MemoryStore) attachLocked(r models.ServiceRequest) models.ServiceRequest {
	out := r.Clone()
	if inv, ok := s.invoices[r.ID]; ok {
		out.Invoice = &inv
	}
	if pd, ok := s.photos[r.ID]; ok {
		c := pd.Clone()
		out.PhotoDocumentation = &c
	}
	return out
}

func (s *MemoryStore) ListRequests(ctx context.Context, f RequestFilter) ([]models.ServiceRequest, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []models.ServiceRequest
	for _, r := range s.requests {
		if matches(r, f) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})

	total := len(matched)
	start := f.Offset
	if start < 0 {
		start = 0
	}
	if start > total {
		start = total
	}
	end := total
	if f.Limit > 0 && start+f.Limit < total {
		end = start + f.Limit
	}

	out := make([]models.ServiceRequest, 0, end-start)
	for _, r := range matched[start:end] {
		out = append(out, s.attachLocked(r))
	}
	return out, total, nil
}

func matches(r models.ServiceRequest, f RequestFilter) bool {
	if len(f.Statuses) > 0 && !containsStatus(f.Statuses, r.Status) {
		return false
	}
	if f.Area != "" && r.ClientArea != f.Area {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Search)); q != "" {
		if !strings.Contains(strings.ToLower(r.ClientName), q) &&
			!strings.Contains(strings.ToLower(r.ServiceType), q) &&
			!strings.Contains(strings.ToLower(r.ID), q) {
			return false
		}
	}
	return f.Scope.Allows(r)
}

func (s *MemoryStore) SwapRequest(ctx context.Context, next models.ServiceRequest, expected models.Status, ev *models.RequestEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[next.ID]
	if !ok {
		return ErrNotFound
	}
	if cur.Status != expected || cur.Version != next.Version {
		return ErrConflict
	}
	stored := next.Clone()
	stored.Version = cur.Version + 1
	stored.Invoice = nil
	stored.PhotoDocumentation = nil
	s.requests[next.ID] = stored
	if ev != nil {
		s.events[next.ID] = append(s.events[next.ID], *ev)
	}
	return nil
}

func (s *MemoryStore) ListEvents(ctx context.Context, requestID string) ([]models.RequestEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.requests[requestID]; !ok {
		return nil, ErrNotFound
	}
	return append([]models.RequestEvent(nil), s.events[requestID]...), nil
}

func (s *MemoryStore) MutateInvoice(ctx context.Context, requestID string, fn InvoiceMutation) (*models.Invoice, error) {
	unlock := s.writers.Lock("invoice:" + requestID)
	defer unlock()

	s.mu.RLock()
	_, ok := s.requests[requestID]
	cur, has := s.invoices[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var in *models.Invoice
	if has {
		c := cur
		in = &c
	}
	next, err := fn(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if next == nil {
		delete(s.invoices, requestID)
		return nil, nil
	}
	s.invoices[requestID] = *next
	out := *next
	return &out, nil
}

func (s *MemoryStore) MutatePhotos(ctx context.Context, requestID string, fn PhotoMutation) (*models.PhotoDocumentation, error) {
	unlock := s.writers.Lock("photos:" + requestID)
	defer unlock()

	s.mu.RLock()
	_, ok := s.requests[requestID]
	cur, has := s.photos[requestID]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}

	var in *models.PhotoDocumentation
	if has {
		c := cur.Clone()
		in = &c
	}
	next, err := fn(in)
	if err != nil {
		return nil, err
	}
	if next == nil {
		return in, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.photos[requestID] = next.Clone()
	out := next.Clone()
	return &out, nil
}

func (s *MemoryStore) UpsertRoster(ctx context.Context, managers []models.Manager, teams []models.Team) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range managers {
		m.Areas = append([]models.Area(nil), m.Areas...)
		s.managers[m.ID] = m
	}
	for _, t := range teams {
		t.Members = append([]string(nil), t.Members...)
		s.teams[t.ID] = t
	}
	return nil
}

func (s *MemoryStore) GetManager(ctx context.Context, id string) (models.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.managers[id]
	if !ok {
		return models.Manager{}, ErrNotFound
	}
	return m, nil
}

func (s *MemoryStore) ListManagers(ctx context.Context, area models.Area) ([]models.Manager, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Manager
	for _, m := range s.managers {
		if area != "" && !m.Covers(area) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListTeams(ctx context.Context, managerID string) ([]models.Team, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Team
	for _, t := range s.teams {
		if managerID != "" && t.ManagerID != managerID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ManagerLoads(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loads := map[string]int{}
	for _, r := range s.requests {
		if r.AssignedManagerID == "" || r.Status.Terminal() {
			continue
		}
		loads[r.AssignedManagerID]++
	}
	return loads, nil
}

// keyedMutex hands out one mutex per key. Keys are never evicted; the key
// space is bounded by requests times sub-resource kinds.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &sync.Mutex{}
		k.locks[key] = l
	}
	k.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func containsArea(list []models.Area, a models.Area) bool {
	for _, v := range list {
		if v == a {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
